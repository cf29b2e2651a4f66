package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ArtifactKind discriminates the artifact variants.
type ArtifactKind string

const (
	// ArtifactKindVideo is a playable screen recording.
	ArtifactKindVideo ArtifactKind = "video"
	// ArtifactKindDocument is a renderable document such as a downloaded PDF.
	ArtifactKindDocument ArtifactKind = "document"
	// ArtifactKindDataTable is tabular data, optionally backed by a CSV file.
	ArtifactKindDataTable ArtifactKind = "data_table"
	// ArtifactKindEmailMessage is a structured email message.
	ArtifactKindEmailMessage ArtifactKind = "email_message"
)

// Valid returns true if the ArtifactKind is known.
func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactKindVideo, ArtifactKindDocument, ArtifactKindDataTable, ArtifactKindEmailMessage:
		return true
	default:
		return false
	}
}

// Wire discriminators used by the dashboard JSON ("type" and "icon").
const (
	wireTypeVideo = "video"
	wireTypeFile  = "file"
	wireTypeCSV   = "csv"
	wireTypeEmail = "email"

	iconDashboard = "dashboard"
)

func (k ArtifactKind) wireType() string {
	switch k {
	case ArtifactKindVideo:
		return wireTypeVideo
	case ArtifactKindDocument:
		return wireTypeFile
	case ArtifactKindDataTable:
		return wireTypeCSV
	case ArtifactKindEmailMessage:
		return wireTypeEmail
	default:
		return string(k)
	}
}

// Icon is the viewer icon name for the kind.
func (k ArtifactKind) Icon() string {
	switch k {
	case ArtifactKindVideo:
		return wireTypeVideo
	case ArtifactKindDataTable:
		return iconDashboard
	case ArtifactKindEmailMessage:
		return wireTypeEmail
	default:
		return wireTypeFile
	}
}

func kindFromWire(t string) (ArtifactKind, error) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case wireTypeVideo:
		return ArtifactKindVideo, nil
	case wireTypeFile, "pdf", string(ArtifactKindDocument):
		return ArtifactKindDocument, nil
	case wireTypeCSV, string(ArtifactKindDataTable):
		return ArtifactKindDataTable, nil
	case wireTypeEmail, string(ArtifactKindEmailMessage):
		return ArtifactKindEmailMessage, nil
	default:
		return "", fmt.Errorf("unknown artifact type %q", t)
	}
}

// DataTable is the payload of a data_table artifact.
type DataTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// EmailMessage is the payload of an email_message artifact.
type EmailMessage struct {
	From       string    `json:"from"`
	To         []string  `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Artifact references content produced outside the store.
//
// Locator semantics depend on Kind: a playable media path for video, a renderable document
// path for document, an optional CSV path for data_table, and an optional raw message path
// for email_message. Table and Message carry the inline payload of their kinds and are nil
// for the others.
type Artifact struct {
	ID      string
	Kind    ArtifactKind
	Label   string
	Locator string
	Table   *DataTable
	Message *EmailMessage
}

// Validate checks that the artifact's payload matches its kind.
func (a *Artifact) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("artifact id is required and cannot be empty")
	}
	if !a.Kind.Valid() {
		return errors.New("artifact kind must be one of: video, document, data_table, email_message")
	}
	switch a.Kind {
	case ArtifactKindVideo, ArtifactKindDocument:
		if strings.TrimSpace(a.Locator) == "" {
			return fmt.Errorf("%s artifact locator is required and cannot be empty", a.Kind)
		}
		if a.Table != nil || a.Message != nil {
			return fmt.Errorf("%s artifact cannot carry a table or message payload", a.Kind)
		}
	case ArtifactKindDataTable:
		if a.Table == nil && strings.TrimSpace(a.Locator) == "" {
			return errors.New("data_table artifact requires a table or a locator")
		}
		if a.Message != nil {
			return errors.New("data_table artifact cannot carry a message payload")
		}
	case ArtifactKindEmailMessage:
		if a.Message == nil && strings.TrimSpace(a.Locator) == "" {
			return errors.New("email_message artifact requires a message or a locator")
		}
		if a.Table != nil {
			return errors.New("email_message artifact cannot carry a table payload")
		}
	}
	return nil
}

type artifactWire struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Label     string        `json:"label"`
	Icon      string        `json:"icon,omitempty"`
	VideoPath string        `json:"videoPath,omitempty"`
	PDFPath   string        `json:"pdfPath,omitempty"`
	CSVPath   string        `json:"csvPath,omitempty"`
	EmailPath string        `json:"emailPath,omitempty"`
	Table     *DataTable    `json:"table,omitempty"`
	Email     *EmailMessage `json:"email,omitempty"`
}

// MarshalJSON writes the dashboard wire form with the kind-specific locator key.
func (a Artifact) MarshalJSON() ([]byte, error) {
	w := artifactWire{
		ID:    a.ID,
		Type:  a.Kind.wireType(),
		Label: a.Label,
		Icon:  a.Kind.Icon(),
		Table: a.Table,
		Email: a.Message,
	}
	switch a.Kind {
	case ArtifactKindVideo:
		w.VideoPath = a.Locator
	case ArtifactKindDocument:
		w.PDFPath = a.Locator
	case ArtifactKindDataTable:
		w.CSVPath = a.Locator
	case ArtifactKindEmailMessage:
		w.EmailPath = a.Locator
	default:
		return nil, fmt.Errorf("marshal artifact %s: unknown kind %q", a.ID, a.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the dashboard wire form.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var w artifactWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, err := kindFromWire(w.Type)
	if err != nil {
		return err
	}
	*a = Artifact{
		ID:      w.ID,
		Kind:    kind,
		Label:   w.Label,
		Table:   w.Table,
		Message: w.Email,
	}
	switch kind {
	case ArtifactKindVideo:
		a.Locator = w.VideoPath
	case ArtifactKindDocument:
		a.Locator = w.PDFPath
	case ArtifactKindDataTable:
		a.Locator = w.CSVPath
	case ArtifactKindEmailMessage:
		a.Locator = w.EmailPath
	}
	return nil
}

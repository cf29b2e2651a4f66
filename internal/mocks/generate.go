// Package mocks provides mock implementations of the runboard ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in
// internal/core. To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobStore(ctrl)
//	store.EXPECT().ReadJob(gomock.Any(), model.JobID(1)).Return(rec, nil)
package mocks

// JobStore: CreateJob, AppendStep, UpdateStep, SetJobStatus, ReadJob, ListJobs, JobsByStatus
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_store_mock.go github.com/target/runboard/internal/core JobStore

// Automation: Execute
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=automation_mock.go github.com/target/runboard/internal/core Automation

// CredentialSource: Current
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_source_mock.go github.com/target/runboard/internal/core CredentialSource

// ArtifactPublisher: Publish
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=artifact_publisher_mock.go github.com/target/runboard/internal/core ArtifactPublisher

// Escalator: Escalate
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=escalator_mock.go github.com/target/runboard/internal/core Escalator

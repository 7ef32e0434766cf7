package secrets

import (
	"context"

	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockEncryptor mocks the SecretsEncryptor interface
type MockEncryptor struct {
	mock.Mock
}

// Encrypt mocks the Encrypt method
func (m *MockEncryptor) Encrypt(ctx context.Context, secrets map[string]string) (string, error) {
	args := m.Called(ctx, secrets)
	return args.String(0), args.Error(1)
}

// MockUploader mocks the SecretsUploader interface
type MockUploader struct {
	mock.Mock
}

// Upload mocks the Upload method
func (m *MockUploader) Upload(ctx context.Context, req UploadRequest) (*interfaces.UploadResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*interfaces.UploadResult)
	return result, args.Error(1)
}

package request

import "github.com/stretchr/testify/mock"

// MockSourceLoader is a mock implementation of SourceLoader.
type MockSourceLoader struct {
	mock.Mock
}

func (m *MockSourceLoader) Load(path string) (string, error) {
	args := m.Called(path)
	return args.String(0), args.Error(1)
}

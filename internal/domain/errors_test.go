package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "error without wrapped error",
			appErr:   ErrCameraNotFound,
			expected: "Camera not found",
		},
		{
			name: "error with wrapped error",
			appErr: &AppError{
				Code:       "TEST_ERROR",
				Message:    "Test message",
				StatusCode: 500,
				Err:        errors.New("underlying error"),
			},
			expected: "Test message: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	appErr := &AppError{
		Code:       "TEST",
		Message:    "test",
		StatusCode: 500,
		Err:        underlying,
	}

	if got := appErr.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	if got := ErrCameraNotFound.Unwrap(); got != nil {
		t.Errorf("Unwrap() = %v, want nil", got)
	}
}

func TestAppError_WithError(t *testing.T) {
	underlying := errors.New("decode failed")
	newErr := ErrInvalidImage.WithError(underlying)

	if newErr.Code != ErrInvalidImage.Code {
		t.Errorf("Code = %v, want %v", newErr.Code, ErrInvalidImage.Code)
	}

	if newErr.StatusCode != 400 {
		t.Errorf("StatusCode = %v, want 400", newErr.StatusCode)
	}

	if !errors.Is(newErr, underlying) {
		t.Errorf("errors.Is should return true for wrapped error")
	}

	if !errors.Is(newErr, ErrInvalidImage) {
		t.Errorf("errors.Is should match the predefined error by code")
	}

	if errors.Is(newErr, ErrCameraNotFound) {
		t.Errorf("errors.Is should not match a different code")
	}
}

func TestAppError_WithMessage(t *testing.T) {
	err := ErrCameraNotFound.WithMessage("camera cam9 not found")

	if err.Message != "camera cam9 not found" {
		t.Errorf("Message = %v", err.Message)
	}
	if err.StatusCode != 404 || err.Code != "CAMERA_NOT_FOUND" {
		t.Errorf("unexpected code/status: %v/%v", err.Code, err.StatusCode)
	}
	if ErrCameraNotFound.Message != "Camera not found" {
		t.Errorf("WithMessage must not mutate the predefined error")
	}
}

func TestErrorsAs(t *testing.T) {
	err := fmt.Errorf("open session: %w", ErrCameraNotFound)

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("errors.As should match AppError")
	}

	if appErr.Code != "CAMERA_NOT_FOUND" {
		t.Errorf("Code = %v, want CAMERA_NOT_FOUND", appErr.Code)
	}
}

func TestPipelineErrorsWrap(t *testing.T) {
	wrapped := fmt.Errorf("cam1: %w", ErrCapture)
	if !errors.Is(wrapped, ErrCapture) {
		t.Errorf("wrapped capture error should match ErrCapture")
	}
	if errors.Is(wrapped, ErrDetection) {
		t.Errorf("capture error should not match ErrDetection")
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err        *AppError
		code       string
		statusCode int
	}{
		{ErrInternal, "INTERNAL_ERROR", 500},
		{ErrBadRequest, "BAD_REQUEST", 400},
		{ErrNotFound, "NOT_FOUND", 404},
		{ErrCameraNotFound, "CAMERA_NOT_FOUND", 404},
		{ErrKnownFaceExists, "KNOWN_FACE_EXISTS", 409},
		{ErrInvalidImage, "INVALID_IMAGE", 400},
		{ErrRateLimitExceeded, "RATE_LIMIT_EXCEEDED", 429},
		{ErrValidationFailed, "VALIDATION_FAILED", 400},
		{ErrInvalidThreshold, "INVALID_THRESHOLD", 400},
		{ErrDetectionUnavailable, "DETECTION_UNAVAILABLE", 503},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %v, want %v", tt.err.StatusCode, tt.statusCode)
			}
		})
	}
}

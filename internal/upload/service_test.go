package upload

import (
	"strings"
	"testing"
)

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		wantErr     error
	}{
		{MIMEImageJPEG, nil},
		{MIMEImagePNG, nil},
		{MIMEImageWebP, nil},
		{"image/gif", ErrUnsupportedType},
		{"audio/mpeg", ErrUnsupportedType},
		{"application/pdf", ErrUnsupportedType},
		{"", ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if err := ValidateContentType(tt.contentType); err != tt.wantErr {
				t.Errorf("ValidateContentType(%q) = %v, want %v", tt.contentType, err, tt.wantErr)
			}
		})
	}
}

func TestGenerateObjectKey(t *testing.T) {
	encounterID := "9d2f1a34-abc"
	key, err := GenerateObjectKey(MIMEImageJPEG, &encounterID)
	if err != nil {
		t.Fatalf("GenerateObjectKey: %v", err)
	}
	if !strings.HasPrefix(key, "encounters/9d2f1a34-abc/") {
		t.Errorf("key = %q, want encounters/9d2f1a34-abc/ prefix", key)
	}
	if !strings.HasSuffix(key, ".jpg") {
		t.Errorf("key = %q, want .jpg suffix", key)
	}
}

func TestGenerateObjectKeyNoEncounter(t *testing.T) {
	key, err := GenerateObjectKey(MIMEImagePNG, nil)
	if err != nil {
		t.Fatalf("GenerateObjectKey: %v", err)
	}
	if !strings.HasPrefix(key, "encounters/pending/") {
		t.Errorf("key = %q, want encounters/pending/ prefix", key)
	}
}

func TestGenerateObjectKeySanitizesID(t *testing.T) {
	malicious := "../../../etc/passwd"
	key, err := GenerateObjectKey(MIMEImageJPEG, &malicious)
	if err != nil {
		t.Fatalf("GenerateObjectKey: %v", err)
	}
	if strings.Contains(key, "..") || strings.Contains(key, "etc/passwd") {
		t.Errorf("key %q contains unsanitized path components", key)
	}
}

func TestGenerateObjectKeyAllInvalidID(t *testing.T) {
	malicious := "../.."
	if _, err := GenerateObjectKey(MIMEImageJPEG, &malicious); err != ErrInvalidEncounterID {
		t.Errorf("err = %v, want ErrInvalidEncounterID", err)
	}
}

func TestValidateFileSize(t *testing.T) {
	svc := &Service{maxSizeBytes: 10 * 1024 * 1024}

	if err := svc.ValidateFileSize(5 * 1024 * 1024); err != nil {
		t.Errorf("5MB should be valid: %v", err)
	}
	if err := svc.ValidateFileSize(11 * 1024 * 1024); err != ErrFileTooLarge {
		t.Errorf("11MB: err = %v, want ErrFileTooLarge", err)
	}
	if err := svc.ValidateFileSize(0); err == nil {
		t.Error("zero size should be rejected")
	}
	if err := svc.ValidateFileSize(-1); err == nil {
		t.Error("negative size should be rejected")
	}
}

func TestIllustrationKey(t *testing.T) {
	key, err := IllustrationKey("9d2f1a34-abc")
	if err != nil {
		t.Fatalf("IllustrationKey: %v", err)
	}
	if !strings.HasPrefix(key, "illustrations/9d2f1a34-abc/") {
		t.Errorf("key = %q, want illustrations/9d2f1a34-abc/ prefix", key)
	}
	if !strings.HasSuffix(key, ".png") {
		t.Errorf("key = %q, want .png suffix", key)
	}

	if _, err := IllustrationKey("../.."); err != ErrInvalidEncounterID {
		t.Errorf("err = %v, want ErrInvalidEncounterID", err)
	}
}

func TestPublicURL(t *testing.T) {
	svc := &Service{publicBaseURL: "https://media.ghostatlas.example"}
	got := svc.PublicURL("encounters/abc/img.jpg")
	want := "https://media.ghostatlas.example/encounters/abc/img.jpg"
	if got != want {
		t.Errorf("PublicURL = %q, want %q", got, want)
	}

	bare := &Service{}
	if got := bare.PublicURL("k"); got != "k" {
		t.Errorf("PublicURL without base = %q, want key unchanged", got)
	}
}

func TestNewServiceValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServiceConfig
	}{
		{"missing bucket", ServiceConfig{AccessKeyID: "k", SecretAccessKey: "s", Endpoint: "e"}},
		{"missing key", ServiceConfig{BucketName: "b", SecretAccessKey: "s", Endpoint: "e"}},
		{"missing secret", ServiceConfig{BucketName: "b", AccessKeyID: "k", Endpoint: "e"}},
		{"missing endpoint", ServiceConfig{BucketName: "b", AccessKeyID: "k", SecretAccessKey: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewServiceDefaults(t *testing.T) {
	svc, err := NewService(ServiceConfig{
		BucketName:      "ghostatlas-media",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Endpoint:        "https://account.r2.cloudflarestorage.com",
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.maxSizeBytes != 10*1024*1024 {
		t.Errorf("maxSizeBytes = %d, want 10MB default", svc.maxSizeBytes)
	}
	if svc.urlExpiry.Minutes() != 5 {
		t.Errorf("urlExpiry = %v, want 5m default", svc.urlExpiry)
	}
}

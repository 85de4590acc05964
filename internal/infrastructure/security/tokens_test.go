package security_test

import (
	"testing"
	"time"

	"github.com/fablepress/fablepress-go/internal/infrastructure/security"
)

func TestArtifactTokenRoundTrip(t *testing.T) {
	token, err := security.GenerateArtifactToken("storybook-finals", "proj1/final.pdf", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateArtifactToken failed: %v", err)
	}

	bucket, path, err := security.ValidateArtifactToken(token, "secret")
	if err != nil {
		t.Fatalf("ValidateArtifactToken failed: %v", err)
	}
	if bucket != "storybook-finals" || path != "proj1/final.pdf" {
		t.Errorf("token scope = %s/%s", bucket, path)
	}
}

func TestArtifactTokenRejectsWrongSecret(t *testing.T) {
	token, err := security.GenerateArtifactToken("b", "p", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateArtifactToken failed: %v", err)
	}
	if _, _, err := security.ValidateArtifactToken(token, "other"); err == nil {
		t.Fatal("token validated with the wrong secret")
	}
}

func TestArtifactTokenExpires(t *testing.T) {
	token, err := security.GenerateArtifactToken("b", "p", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateArtifactToken failed: %v", err)
	}
	if _, _, err := security.ValidateArtifactToken(token, "secret"); err == nil {
		t.Fatal("expired token validated")
	}
}

func TestArtifactTokenRejectsGarbage(t *testing.T) {
	if _, _, err := security.ValidateArtifactToken("not-a-token", "secret"); err == nil {
		t.Fatal("garbage token validated")
	}
}

package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/BerniceZTT/crm_engagement/utils"
)

func TestTokenCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "--storage", "memory", "--id", "u-42", "--code", "R07", "--role", "team_lead"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}

	claims, err := utils.ParseToken(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims["id"] != "u-42" || claims["role"] != "TEAM_LEAD" || claims["code"] != "R07" || claims["username"] != "u-42" {
		t.Fatalf("claims = %v", claims)
	}

	rootCmd.SetArgs([]string{"token", "--storage", "memory", "--id", "u-42", "--role", "intern"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatalf("unknown role accepted")
	}
}

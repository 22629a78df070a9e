// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
)

func TestGetValidator_Singleton(t *testing.T) {
	require.Same(t, GetValidator(), GetValidator())
}

func TestValidateStruct_CreateAccount(t *testing.T) {
	tests := []struct {
		name      string
		req       models.CreateAccountRequest
		wantField string
		wantTag   string
	}{
		{
			name: "valid",
			req:  models.CreateAccountRequest{Kind: models.KindTelegram, DisplayName: "Support"},
		},
		{
			name: "valid with owner",
			req:  models.CreateAccountRequest{Kind: models.KindWhatsApp, DisplayName: "Sales", OwnerCode: "team_a-1"},
		},
		{
			name:      "missing kind",
			req:       models.CreateAccountRequest{DisplayName: "Support"},
			wantField: "kind",
			wantTag:   "required",
		},
		{
			name:      "unknown kind",
			req:       models.CreateAccountRequest{Kind: "signal", DisplayName: "Support"},
			wantField: "kind",
			wantTag:   "account_kind",
		},
		{
			name:      "display name too long",
			req:       models.CreateAccountRequest{Kind: models.KindTikTok, DisplayName: strings.Repeat("x", 101)},
			wantField: "display_name",
			wantTag:   "max",
		},
		{
			name:      "bad owner code",
			req:       models.CreateAccountRequest{Kind: models.KindFacebook, DisplayName: "x", OwnerCode: "a b"},
			wantField: "owner_code",
			wantTag:   "owner_code",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.req)
			if tt.wantField == "" {
				assert.Nil(t, verr)
				return
			}
			require.NotNil(t, verr)
			require.Len(t, verr.Errors(), 1)
			fe := verr.Errors()[0]
			assert.Equal(t, tt.wantField, fe.Field())
			assert.Equal(t, tt.wantTag, fe.Tag())
		})
	}
}

func TestValidateStruct_CommandName(t *testing.T) {
	assert.Nil(t, ValidateStruct(&models.CommandRequest{Command: "request_state"}))

	verr := ValidateStruct(&models.CommandRequest{Command: "Send Message"})
	require.NotNil(t, verr)
	assert.Equal(t, "command", verr.Errors()[0].Field())
	assert.Contains(t, verr.Error(), "lowercase")
}

func TestRequestValidationError_ToAPIError(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		verr := ValidateStruct(&models.CreateAccountRequest{Kind: models.KindTelegram})
		require.NotNil(t, verr)
		apiErr := verr.ToAPIError()
		assert.Equal(t, models.ErrCodeValidation, apiErr.Code)
		assert.Equal(t, "display_name is required", apiErr.Message)
		assert.Equal(t, "display_name", apiErr.Details["field"])
	})

	t.Run("multiple", func(t *testing.T) {
		verr := ValidateStruct(&models.CreateAccountRequest{})
		require.NotNil(t, verr)
		apiErr := verr.ToAPIError()
		assert.Equal(t, models.ErrCodeValidation, apiErr.Code)
		fields, ok := apiErr.Details["fields"].([]map[string]interface{})
		require.True(t, ok)
		assert.Len(t, fields, 2)
		assert.Contains(t, apiErr.Message, "kind is required")
		assert.Contains(t, apiErr.Message, "display_name is required")
	})

	t.Run("empty", func(t *testing.T) {
		apiErr := (&RequestValidationError{}).ToAPIError()
		assert.Equal(t, "Validation failed", apiErr.Message)
	})
}

package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorStatus(t *testing.T) {
	domainErr := errors.New("documents: stale version")
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound},
		{Wrap(ErrConflict, domainErr), http.StatusConflict},
		{Wrap(ErrValidation, domainErr), http.StatusBadRequest},
		{Wrap(ErrUnprocessable, domainErr), http.StatusUnprocessableEntity},
		{ErrForbidden, http.StatusForbidden},
		{domainErr, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestWrapKeepsOriginal(t *testing.T) {
	domainErr := errors.New("documents: overpayment")
	err := Wrap(ErrUnprocessable, domainErr)
	require.ErrorIs(t, err, domainErr)
	require.ErrorIs(t, err, ErrUnprocessable)
	assert.Equal(t, domainErr.Error(), err.Error())
	assert.Nil(t, Wrap(ErrConflict, nil))

	rec := httptest.NewRecorder()
	RespondError(rec, err)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "documents: overpayment", body.Detail)
}

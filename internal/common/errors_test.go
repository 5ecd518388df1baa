package common_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-quote/internal/common"
)

func TestFailDerivesStatusFromCode(t *testing.T) {
	cause := errors.New("row 3: matched without product")
	err := common.Fail(common.CodeProductNotFound, "product missing", cause)

	require.Equal(t, http.StatusUnprocessableEntity, err.Status())
	require.ErrorIs(t, err, cause)
	require.Equal(t, "PRODUCT_NOT_FOUND: product missing: row 3: matched without product", err.Error())
	require.Equal(t, http.StatusInternalServerError, common.StatusFor("SOMETHING_NEW"))
}

func TestWriteErrorHidesUnknownCauses(t *testing.T) {
	var body struct {
		Error common.ErrorBody `json:"error"`
	}

	rr := httptest.NewRecorder()
	wrapped := fmt.Errorf("recalculate: %w", common.Fail(common.CodeConflict, "reconciliation session is not ready", nil))
	common.WriteError(rr, wrapped)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, common.CodeConflict, body.Error.Code)

	rr = httptest.NewRecorder()
	common.WriteError(rr, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, common.CodeInternal, body.Error.Code)
	require.NotContains(t, rr.Body.String(), "password")
}

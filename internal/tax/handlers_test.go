package tax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("missing")

type memRateStore struct {
	rates map[uuid.UUID]Rate
}

func newMemRateStore() *memRateStore {
	return &memRateStore{rates: make(map[uuid.UUID]Rate)}
}

func (m *memRateStore) ListTaxRates(context.Context) ([]Rate, error) {
	out := make([]Rate, 0, len(m.rates))
	for _, rate := range m.rates {
		out = append(out, rate)
	}
	return out, nil
}

func (m *memRateStore) SaveTaxRate(_ context.Context, rate Rate) error {
	m.rates[rate.ID] = rate
	return nil
}

func (m *memRateStore) DeleteTaxRate(_ context.Context, id uuid.UUID) error {
	if _, ok := m.rates[id]; !ok {
		return errMissing
	}
	delete(m.rates, id)
	return nil
}

func rateRouter(store *memRateStore) *chi.Mux {
	h := &Handler{Store: store, Validate: validator.New(), NotFound: errMissing}
	r := chi.NewRouter()
	r.Get("/admin/tax-rates", h.List)
	r.Post("/admin/tax-rates", h.Create)
	r.Put("/admin/tax-rates/{rateId}", h.Update)
	r.Delete("/admin/tax-rates/{rateId}", h.Delete)
	return r
}

func doRateRequest(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestAdminCreateTaxRate(t *testing.T) {
	store := newMemRateStore()
	r := rateRouter(store)

	rec := doRateRequest(t, r, http.MethodPost, "/admin/tax-rates", map[string]any{
		"label":            "VAT 20%",
		"percentage":       "0.20",
		"displayInclusive": true,
		"conditions": []map[string]any{
			{"id": "order_item_purchasable", "config": map[string]any{
				"purchasable_ids": []string{"sku-1"},
			}},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.rates, 1)

	for _, rate := range store.rates {
		assert.Equal(t, "VAT 20%", rate.Label)
		assert.True(t, rate.DisplayInclusive)
		assert.Equal(t, "0.2", rate.Percentage.String())
		require.Len(t, rate.Conditions, 1)
	}
}

func TestAdminCreateTaxRateRejectsBadPercentage(t *testing.T) {
	r := rateRouter(newMemRateStore())

	for _, percentage := range []string{"0", "-0.1", "twenty"} {
		rec := doRateRequest(t, r, http.MethodPost, "/admin/tax-rates", map[string]any{
			"label":      "Broken",
			"percentage": percentage,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code, "percentage %q", percentage)
	}
}

func TestAdminUpdateTaxRate(t *testing.T) {
	store := newMemRateStore()
	id := uuid.New()
	r := rateRouter(store)

	rec := doRateRequest(t, r, http.MethodPut, "/admin/tax-rates/"+id.String(), map[string]any{
		"label":      "City tax",
		"percentage": "0.02",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "City tax", store.rates[id].Label)
}

func TestAdminDeleteTaxRate(t *testing.T) {
	store := newMemRateStore()
	id := uuid.New()
	store.rates[id] = Rate{ID: id, Label: "Doomed"}
	r := rateRouter(store)

	rec := doRateRequest(t, r, http.MethodDelete, "/admin/tax-rates/"+id.String(), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.rates)

	rec = doRateRequest(t, r, http.MethodDelete, "/admin/tax-rates/"+id.String(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

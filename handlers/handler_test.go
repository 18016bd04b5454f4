package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stockroom_backend/config"
	"github.com/mmdatafocus/stockroom_backend/handlers"
	"github.com/mmdatafocus/stockroom_backend/middlewares"
	"github.com/mmdatafocus/stockroom_backend/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := config.OpenDatabase(config.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, models.MigrateTable(db))
	_, _, err = models.EnsureAdminAccount(db, "admin", "admin-pw")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	inv := models.NewInventory(models.NewTxProvider(db), logger)
	r := gin.New()
	r.Use(middlewares.AuthMiddleware(), middlewares.SessionMiddleware(inv))
	handlers.New(inv, logger).Register(r)
	return &api{t: t, router: r}
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *api) login(login, password string) string {
	a.t.Helper()
	w := a.do(http.MethodPost, "/login", "", gin.H{"login": login, "password": password})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	var info models.LoginInfo
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &info))
	return info.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestStockFlowOverHTTP(t *testing.T) {
	a := newAPI(t)
	admin := a.login("admin", "admin-pw")

	w := a.do(http.MethodPost, "/accounts", admin, gin.H{"name": "Clara", "login": "clerk", "password": "clerk-pw"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	clerk := a.login("clerk", "clerk-pw")

	w = a.do(http.MethodPost, "/items", clerk, gin.H{"name": "Milk"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodPost, "/items", admin, gin.H{"name": "Milk", "unit": "l"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	item := decode[models.Item](t, w)
	base := "/items/" + itoa(item.ID)

	w = a.do(http.MethodPost, base+"/supply", clerk, gin.H{"amount": 5, "expiration_date": "2030-01-15"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = a.do(http.MethodPost, base+"/supply", clerk, gin.H{"amount": 3, "expiration_date": "2030-02-15"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodGet, base+"/offtake-plan?quantity=6", clerk, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	plan := decode[models.OfftakePlan](t, w)
	require.Len(t, plan.Lots, 2)
	assert.Equal(t, "2030-01-15", plan.Lots[0].ExpirationDate.String())

	w = a.do(http.MethodPost, base+"/offtake", clerk, gin.H{"lots": plan.Lots})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodPost, base+"/offtake", clerk, gin.H{"lots": []gin.H{{"expiration_date": "2030-02-15", "amount": 5}}})
	assert.Equal(t, http.StatusConflict, w.Code)
	failure := decode[map[string]string](t, w)
	assert.Equal(t, "insufficient_stock", failure["kind"])

	w = a.do(http.MethodPost, base+"/trash", clerk, gin.H{"lots": []gin.H{{"expiration_date": "2030-02-15", "amount": 1}}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = a.do(http.MethodPost, base+"/trash", admin, gin.H{"lots": []gin.H{{"expiration_date": "2030-02-15", "amount": 1}}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodGet, base+"/lots", clerk, nil)
	require.Equal(t, http.StatusOK, w.Code)
	lots := decode[[]models.Lot](t, w)
	require.Len(t, lots, 1)
	assert.Equal(t, 1, lots[0].Amount)

	w = a.do(http.MethodGet, base, clerk, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.Item](t, w).CurAmount)

	w = a.do(http.MethodGet, base+"/history", clerk, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.LedgerEntry](t, w), 4)

	w = a.do(http.MethodGet, base+"/history.xlsx", clerk, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "history.xlsx")
	assert.NotZero(t, w.Body.Len())

	w = a.do(http.MethodDelete, base, admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(http.MethodGet, "/maintenance/reconcile", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[map[string][]models.Drift](t, w)
	assert.Empty(t, report["drift"])
}

func TestRequestErrors(t *testing.T) {
	a := newAPI(t)
	admin := a.login("admin", "admin-pw")

	w := a.do(http.MethodGet, "/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodGet, "/items", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodGet, "/items/abc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodGet, "/items/999/lots", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(http.MethodPost, "/items/999/offtake", admin, gin.H{"lots": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodPost, "/items", admin, gin.H{"name": "Tea", "unit": "pcs"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tea := "/items/" + itoa(decode[models.Item](t, w).ID)
	w = a.do(http.MethodPost, tea+"/supply", admin, gin.H{"amount": 5, "expiration_date": "2030-01-01"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// a negative entry must not cancel out an oversized one for the same lot
	w = a.do(http.MethodPost, tea+"/offtake", admin, gin.H{"lots": []gin.H{
		{"expiration_date": "2030-01-01", "amount": -5},
		{"expiration_date": "2030-01-01", "amount": 8},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	w = a.do(http.MethodPost, tea+"/trash", admin, gin.H{"lots": []gin.H{{"expiration_date": "2030-01-01", "amount": -1}}})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	w = a.do(http.MethodGet, tea, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, decode[models.Item](t, w).CurAmount)

	w = a.do(http.MethodDelete, "/categories/1", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(http.MethodPost, "/login", "", gin.H{"login": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccountChangesApplyToIssuedTokens(t *testing.T) {
	require.Nil(t, config.GetRedisDB())
	a := newAPI(t)
	admin := a.login("admin", "admin-pw")

	w := a.do(http.MethodPost, "/accounts", admin, gin.H{"name": "Bob", "login": "bob", "password": "bob-pw", "is_privileged": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bobId := itoa(decode[models.Account](t, w).ID)
	bob := a.login("bob", "bob-pw")

	w = a.do(http.MethodPost, "/accounts", bob, gin.H{"name": "Eve", "login": "eve", "password": "eve-pw"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	eveId := itoa(decode[models.Account](t, w).ID)

	w = a.do(http.MethodPatch, "/accounts/"+bobId, admin, gin.H{"is_privileged": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = a.do(http.MethodPost, "/accounts", bob, gin.H{"name": "Mallory", "login": "mallory", "password": "pw", "is_privileged": true})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = a.do(http.MethodGet, "/items", bob, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(http.MethodDelete, "/accounts/"+bobId, admin, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = a.do(http.MethodGet, "/items", bob, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = a.do(http.MethodDelete, "/accounts/"+eveId, bob, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodGet, "/accounts/"+eveId, admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusOf(t *testing.T) {
	cases := map[error]int{
		models.ErrNotAuthenticated:    http.StatusUnauthorized,
		models.ErrNotAuthorized:       http.StatusForbidden,
		models.ErrNotFound:            http.StatusNotFound,
		models.ErrInvalidInput:        http.StatusBadRequest,
		models.ErrInsufficientStock:   http.StatusConflict,
		models.ErrReferentialConflict: http.StatusConflict,
		models.ErrStoreUnavailable:    http.StatusServiceUnavailable,
		io.EOF:                        http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, handlers.StatusOf(&models.LedgerError{Kind: err}), err.Error())
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

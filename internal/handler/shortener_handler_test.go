package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/gamassss/shortlink/internal/mocks"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const baseURL = "http://sho.rt/"

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func setupShortenerRouter(service *mocks.MockShortenerService, recorder *mocks.MockVisitRecorder) *gin.Engine {
	handler := NewShortenerHandler(service, recorder, baseURL)
	router := setupTestRouter()
	router.POST("/", handler.ShortenForm)
	router.POST("/api/shorten", handler.ShortenJSON)
	router.GET("/:shortKey", handler.Redirect)
	return router
}

func postForm(longURL string) *http.Request {
	form := url.Values{"url": {longURL}}
	req := httptest.NewRequest("POST", "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestShortenForm_Success(t *testing.T) {
	mockService := new(mocks.MockShortenerService)
	router := setupShortenerRouter(mockService, new(mocks.MockVisitRecorder))

	mockService.On("Shorten", mock.Anything, "http://example.com/a").
		Return(&domain.Link{ID: 1, Long: "http://example.com/a", Short: "aB3d"}, nil).Once()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postForm("http://example.com/a"))

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "http://sho.rt/aB3d", body["short_url"])
	assert.Equal(t, "aB3d", body["short_key"])
	assert.Equal(t, "http://example.com/a", body["long_url"])

	mockService.AssertExpectations(t)
}

func TestShortenForm_DeadURL(t *testing.T) {
	mockService := new(mocks.MockShortenerService)
	router := setupShortenerRouter(mockService, new(mocks.MockVisitRecorder))

	mockService.On("Shorten", mock.Anything, "http://dead.example/").
		Return(nil, domain.NewValidationError("URL is dead")).Once()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postForm("http://dead.example/"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "URL is dead", body["error"])
}

func TestShortenForm_EmptyURLReachesService(t *testing.T) {
	mockService := new(mocks.MockShortenerService)
	router := setupShortenerRouter(mockService, new(mocks.MockVisitRecorder))

	mockService.On("Shorten", mock.Anything, "").
		Return(nil, domain.NewValidationError("URL is required")).Once()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postForm(""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "URL is required", decode(t, w)["error"])
}

func TestShortenForm_CapacityExhausted(t *testing.T) {
	mockService := new(mocks.MockShortenerService)
	router := setupShortenerRouter(mockService, new(mocks.MockVisitRecorder))

	mockService.On("Shorten", mock.Anything, mock.Anything).
		Return(nil, &domain.CapacityError{Attempts: 5}).Once()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postForm("http://example.com/a"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestShortenForm_BackendError(t *testing.T) {
	mockService := new(mocks.MockShortenerService)
	router := setupShortenerRouter(mockService, new(mocks.MockVisitRecorder))

	mockService.On("Shorten", mock.Anything, mock.Anything).
		Return(nil, &domain.BackendError{Op: "insert link", Err: errors.New("database connection failed")}).Once()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postForm("http://example.com/a"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "database connection failed")
}

func TestShortenJSON_Success(t *testing.T) {
	mockService := new(mocks.MockShortenerService)
	router := setupShortenerRouter(mockService, new(mocks.MockVisitRecorder))

	mockService.On("Shorten", mock.Anything, "https://example.com").
		Return(&domain.Link{ID: 2, Long: "https://example.com", Short: "Zx9q"}, nil).Once()

	req := httptest.NewRequest("POST", "/api/shorten", strings.NewReader(`{"url": "https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Zx9q", decode(t, w)["short_key"])
	mockService.AssertExpectations(t)
}

func TestShortenJSON_InvalidJSON(t *testing.T) {
	mockService := new(mocks.MockShortenerService)
	router := setupShortenerRouter(mockService, new(mocks.MockVisitRecorder))

	req := httptest.NewRequest("POST", "/api/shorten", strings.NewReader(`{invalid json}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "Shorten", mock.Anything, mock.Anything)
}

func TestShortenJSON_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing url", `{}`, "URL is required"},
		{"malformed url", `{"url": "not-a-valid-url"}`, "URL must be a valid URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.MockShortenerService)
			router := setupShortenerRouter(mockService, new(mocks.MockVisitRecorder))

			req := httptest.NewRequest("POST", "/api/shorten", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			errs := body["errors"].([]interface{})
			assert.Equal(t, tt.message, errs[0].(map[string]interface{})["message"])
			mockService.AssertNotCalled(t, "Shorten", mock.Anything, mock.Anything)
		})
	}
}

func TestRedirect_Success(t *testing.T) {
	mockService := new(mocks.MockShortenerService)
	mockRecorder := new(mocks.MockVisitRecorder)
	router := setupShortenerRouter(mockService, mockRecorder)

	link := &domain.Link{ID: 1, Long: "https://example.com/a", Short: "aB3d"}
	mockService.On("Resolve", mock.Anything, "aB3d").Return(link, nil).Once()
	mockRecorder.On("Record", mock.Anything, link, mock.MatchedBy(func(r *http.Request) bool {
		return r.URL.Query().Get("utm_source") == "mail"
	})).Once()

	req := httptest.NewRequest("GET", "/aB3d?utm_source=mail", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/a", w.Header().Get("Location"))

	mockService.AssertExpectations(t)
	mockRecorder.AssertExpectations(t)
}

func TestRedirect_NotFound(t *testing.T) {
	mockService := new(mocks.MockShortenerService)
	mockRecorder := new(mocks.MockVisitRecorder)
	router := setupShortenerRouter(mockService, mockRecorder)

	mockService.On("Resolve", mock.Anything, "zzzz").Return(nil, domain.ErrNotFound).Once()

	req := httptest.NewRequest("GET", "/zzzz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockRecorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

func TestRedirect_MalformedKeySkipsLookup(t *testing.T) {
	mockService := new(mocks.MockShortenerService)
	mockRecorder := new(mocks.MockVisitRecorder)
	router := setupShortenerRouter(mockService, mockRecorder)

	req := httptest.NewRequest("GET", "/favicon.ico", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockService.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestRedirect_ServiceError(t *testing.T) {
	mockService := new(mocks.MockShortenerService)
	mockRecorder := new(mocks.MockVisitRecorder)
	router := setupShortenerRouter(mockService, mockRecorder)

	mockService.On("Resolve", mock.Anything, "aB3d").
		Return(nil, &domain.BackendError{Op: "find link by short key", Err: errors.New("database connection failed")}).Once()

	req := httptest.NewRequest("GET", "/aB3d", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	mockRecorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

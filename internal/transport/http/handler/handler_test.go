package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videotube/internal/app"
	"videotube/internal/model"
	"videotube/internal/pkg/jwtutil"
	"videotube/internal/transport/http/middleware"
)

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Errors     []string        `json:"errors"`
}

type fakeVerifier map[string]uint

func (f fakeVerifier) VerifyAccessToken(token string) (uint, error) {
	if token == "expired" {
		return 0, jwtutil.ErrTokenExpired
	}
	if id, ok := f[token]; ok {
		return id, nil
	}
	return 0, jwtutil.ErrTokenInvalid
}

type fakeUserService struct {
	registerIn   app.RegisterInput
	loginIn      app.LoginInput
	refreshIn    string
	logoutID     app.Identity
	avatarPath   string
	err          error
	loginResult  *app.LoginResult
	refreshPair  *app.TokenPair
	current      *model.User
	accountInput app.UpdateAccountInput
}

func (f *fakeUserService) Register(_ context.Context, in app.RegisterInput) (*model.User, error) {
	f.registerIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &model.User{ID: 1, Username: in.Username, Email: in.Email, FullName: in.FullName}, nil
}

func (f *fakeUserService) Login(_ context.Context, in app.LoginInput) (*app.LoginResult, error) {
	f.loginIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.loginResult, nil
}

func (f *fakeUserService) Logout(_ context.Context, id app.Identity) error {
	f.logoutID = id
	return f.err
}

func (f *fakeUserService) RefreshSession(_ context.Context, token string) (*app.TokenPair, error) {
	f.refreshIn = token
	if f.err != nil {
		return nil, f.err
	}
	return f.refreshPair, nil
}

func (f *fakeUserService) ChangePassword(context.Context, app.Identity, app.ChangePasswordInput) error {
	return f.err
}

func (f *fakeUserService) CurrentUser(_ context.Context, id app.Identity) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.current, nil
}

func (f *fakeUserService) UpdateAccountDetails(_ context.Context, _ app.Identity, in app.UpdateAccountInput) (*model.User, error) {
	f.accountInput = in
	if f.err != nil {
		return nil, f.err
	}
	return f.current, nil
}

func (f *fakeUserService) UpdateAvatar(_ context.Context, _ app.Identity, path string) (*model.User, error) {
	f.avatarPath = path
	if f.err != nil {
		return nil, f.err
	}
	return f.current, nil
}

func (f *fakeUserService) UpdateCoverImage(_ context.Context, _ app.Identity, path string) (*model.User, error) {
	return f.UpdateAvatar(context.Background(), app.Identity{}, path)
}

type fakeChannelService struct {
	viewer     *app.Identity
	subscriber app.Identity
	channel    string
	err        error
}

func (f *fakeChannelService) GetChannelProfile(_ context.Context, username string, viewer *app.Identity) (*model.ChannelProfile, error) {
	f.viewer = viewer
	f.channel = username
	if f.err != nil {
		return nil, f.err
	}
	return &model.ChannelProfile{ID: 2, Username: username, SubscribersCount: 2, SubscribedToCount: 1, IsSubscribed: viewer != nil}, nil
}

func (f *fakeChannelService) Subscribe(_ context.Context, id app.Identity, username string) error {
	f.subscriber = id
	f.channel = username
	return f.err
}

func (f *fakeChannelService) Unsubscribe(_ context.Context, id app.Identity, username string) error {
	f.subscriber = id
	f.channel = username
	return f.err
}

type testServer struct {
	router    *gin.Engine
	users     *fakeUserService
	channels  *fakeChannelService
	uploadDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{
		users:     &fakeUserService{},
		channels:  &fakeChannelService{},
		uploadDir: t.TempDir(),
	}
	verifier := fakeVerifier{"good": 7}
	uh := NewUserHandler(s.users, CookieConfig{Secure: true, AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour}, s.uploadDir, nil)
	ch := NewChannelHandler(s.channels, nil)

	r := gin.New()
	auth := middleware.AuthJWT(verifier)
	r.POST("/register", uh.Register)
	r.POST("/login", uh.Login)
	r.POST("/refresh-token", uh.RefreshToken)
	r.POST("/logout", auth, uh.Logout)
	r.GET("/me", auth, uh.Me)
	r.PATCH("/update-account", auth, uh.UpdateAccount)
	r.PATCH("/avatar", auth, uh.UpdateAvatar)
	r.GET("/channel/:username", middleware.OptionalAuth(verifier), ch.Profile)
	r.POST("/subscriptions/:username", auth, ch.Subscribe)
	s.router = r
	return s
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(t, rec.Code, env.StatusCode)
	return rec, env
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for field, name := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte("image-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegister_Created(t *testing.T) {
	s := newTestServer(t)
	req := multipartRequest(t, http.MethodPost, "/register",
		map[string]string{"fullName": "Alice", "email": "alice@x.com", "username": "alice", "password": "p1"},
		map[string]string{"avatar": "me.PNG", "coverImage": "cover.jpg"},
	)

	rec, env := s.do(t, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "User registered successfully", env.Message)

	var user model.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "alice", user.Username)

	in := s.users.registerIn
	assert.Equal(t, "Alice", in.FullName)
	assert.Equal(t, "p1", in.Password)
	assert.Equal(t, s.uploadDir, filepath.Dir(in.AvatarPath))
	assert.Equal(t, ".png", filepath.Ext(in.AvatarPath))
	assert.Equal(t, ".jpg", filepath.Ext(in.CoverImagePath))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegister_WithoutCover(t *testing.T) {
	s := newTestServer(t)
	req := multipartRequest(t, http.MethodPost, "/register",
		map[string]string{"fullName": "Alice", "email": "alice@x.com", "username": "alice", "password": "p1"},
		map[string]string{"avatar": "me.png"},
	)

	rec, _ := s.do(t, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, s.users.registerIn.CoverImagePath)
}

func TestRegister_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
		errs    []string
	}{
		{"conflict", app.ErrUsernameExists, http.StatusConflict, "username already exists", []string{}},
		{"validation", &app.ValidationError{Message: "all fields are required", Fields: []string{"email"}}, http.StatusBadRequest, "all fields are required", []string{"email"}},
		{"avatar", app.ErrAvatarRequired, http.StatusBadRequest, "avatar file is required", []string{"avatar"}},
		{"upload", errors.Join(app.ErrUpload, errors.New("s3 secret detail")), http.StatusBadGateway, "failed to upload file", []string{}},
		{"internal", errors.New("dial tcp 10.0.0.1:3306"), http.StatusInternalServerError, "internal server error", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.users.err = tt.err
			req := multipartRequest(t, http.MethodPost, "/register",
				map[string]string{"fullName": "Alice"},
				map[string]string{"avatar": "me.png"},
			)

			rec, env := s.do(t, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
			assert.Equal(t, tt.errs, env.Errors)
		})
	}
}

func TestLogin_SetsCookies(t *testing.T) {
	s := newTestServer(t)
	s.users.loginResult = &app.LoginResult{
		User:         &model.User{ID: 1, Username: "alice"},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}

	rec, env := s.do(t, jsonRequest(http.MethodPost, "/login", `{"email":"alice@x.com","password":"p1"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@x.com", s.users.loginIn.Identifier)

	var data struct {
		User         model.User `json:"user"`
		AccessToken  string     `json:"accessToken"`
		RefreshToken string     `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "access-1", data.AccessToken)
	assert.Equal(t, "refresh-1", data.RefreshToken)

	access := cookie(rec, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "access-1", access.Value)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, 15*60, access.MaxAge)

	refresh := cookie(rec, middleware.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, 24*60*60, refresh.MaxAge)
}

func TestLogin_PrefersUsername(t *testing.T) {
	s := newTestServer(t)
	s.users.loginResult = &app.LoginResult{User: &model.User{ID: 1}}

	s.do(t, jsonRequest(http.MethodPost, "/login", `{"username":"alice","email":"alice@x.com","password":"p1"}`))
	assert.Equal(t, "alice", s.users.loginIn.Identifier)
}

func TestLogin_UnknownUserLooksLikeBadPassword(t *testing.T) {
	s := newTestServer(t)

	s.users.err = app.ErrUserNotFound
	rec, unknown := s.do(t, jsonRequest(http.MethodPost, "/login", `{"username":"ghost","password":"p1"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.users.err = app.ErrInvalidCredential
	rec, wrong := s.do(t, jsonRequest(http.MethodPost, "/login", `{"username":"alice","password":"nope"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, wrong.Message, unknown.Message)
	assert.Nil(t, cookie(rec, middleware.AccessTokenCookie))
}

func TestLogin_BadPayload(t *testing.T) {
	s := newTestServer(t)
	rec, env := s.do(t, jsonRequest(http.MethodPost, "/login", `{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{}, env.Errors)
}

func TestRefreshToken_CookieThenBody(t *testing.T) {
	s := newTestServer(t)
	s.users.refreshPair = &app.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}

	req := jsonRequest(http.MethodPost, "/refresh-token", `{"refreshToken":"from-body"}`)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: "from-cookie"})
	rec, _ := s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-cookie", s.users.refreshIn)
	assert.Equal(t, "refresh-2", cookie(rec, middleware.RefreshTokenCookie).Value)

	rec, _ = s.do(t, jsonRequest(http.MethodPost, "/refresh-token", `{"refreshToken":"from-body"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-body", s.users.refreshIn)
}

func TestRefreshToken_Rejected(t *testing.T) {
	s := newTestServer(t)
	s.users.err = app.ErrRefreshTokenRevoked

	rec, env := s.do(t, httptest.NewRequest(http.MethodPost, "/refresh-token", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "refresh token is expired or used", env.Message)
	assert.Equal(t, "", s.users.refreshIn)
}

func TestRefreshToken_RejectedClearsCookies(t *testing.T) {
	s := newTestServer(t)
	s.users.err = app.ErrRefreshTokenRevoked

	req := httptest.NewRequest(http.MethodPost, "/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: "superseded"})
	rec, _ := s.do(t, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, name := range []string{middleware.AccessTokenCookie, middleware.RefreshTokenCookie} {
		c := cookie(rec, name)
		require.NotNil(t, c, name)
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
}

func TestRefreshToken_InternalErrorKeepsCookies(t *testing.T) {
	s := newTestServer(t)
	s.users.err = errors.New("db down")

	req := httptest.NewRequest(http.MethodPost, "/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: "current"})
	rec, _ := s.do(t, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Nil(t, cookie(rec, middleware.RefreshTokenCookie))
}

func TestLogout_ClearsCookies(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Authorization", "Bearer good")

	rec, env := s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User logged out", env.Message)
	assert.Equal(t, app.Identity{UserID: 7}, s.users.logoutID)

	for _, name := range []string{middleware.AccessTokenCookie, middleware.RefreshTokenCookie} {
		c := cookie(rec, name)
		require.NotNil(t, c, name)
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
}

func TestMe_Auth(t *testing.T) {
	s := newTestServer(t)
	s.users.current = &model.User{ID: 7, Username: "alice"}

	rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized request", env.Message)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: "expired"})
	rec, env = s.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "access token expired", env.Message)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec, env = s.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid access token", env.Message)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: "good"})
	rec, env = s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var user model.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "alice", user.Username)
}

func TestUpdateAccount(t *testing.T) {
	s := newTestServer(t)
	s.users.current = &model.User{ID: 7, FullName: "Alice L"}

	req := jsonRequest(http.MethodPatch, "/update-account", `{"fullName":"Alice L","email":"not-an-email"}`)
	req.Header.Set("Authorization", "Bearer good")
	rec, _ := s.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = jsonRequest(http.MethodPatch, "/update-account", `{"fullName":"Alice L"}`)
	req.Header.Set("Authorization", "Bearer good")
	rec, _ = s.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice L", s.users.accountInput.FullName)

	s.users.err = app.ErrEmailExists
	req = jsonRequest(http.MethodPatch, "/update-account", `{"email":"bob@x.com"}`)
	req.Header.Set("Authorization", "Bearer good")
	rec, env := s.do(t, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email already exists", env.Message)
}

func TestUpdateAvatar_StagesFile(t *testing.T) {
	s := newTestServer(t)
	s.users.current = &model.User{ID: 7, AvatarURL: "https://cdn.example.com/a.png"}

	req := multipartRequest(t, http.MethodPatch, "/avatar", nil, map[string]string{"avatar": "a.png"})
	req.Header.Set("Authorization", "Bearer good")
	rec, _ := s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, s.uploadDir, filepath.Dir(s.users.avatarPath))

	s.users.err = &app.ValidationError{Message: "avatar file is missing", Fields: []string{"avatar"}}
	req = multipartRequest(t, http.MethodPatch, "/avatar", map[string]string{"x": "y"}, nil)
	req.Header.Set("Authorization", "Bearer good")
	rec, env := s.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.users.avatarPath)
	assert.Equal(t, []string{"avatar"}, env.Errors)
}

func TestChannelProfile_OptionalViewer(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/channel/bob", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, s.channels.viewer)
	assert.Equal(t, "bob", s.channels.channel)

	var profile map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.EqualValues(t, 2, profile["subscribersCount"])
	assert.EqualValues(t, 1, profile["channelsSubscribedToCount"])
	assert.Equal(t, false, profile["isSubscribed"])

	req := httptest.NewRequest(http.MethodGet, "/channel/bob", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec, _ = s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.channels.viewer)
	assert.Equal(t, uint(7), s.channels.viewer.UserID)

	// A bad token on an optional route degrades to anonymous.
	req = httptest.NewRequest(http.MethodGet, "/channel/bob", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec, _ = s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, s.channels.viewer)

	s.channels.err = app.ErrChannelNotFound
	rec, env = s.do(t, httptest.NewRequest(http.MethodGet, "/channel/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "channel does not exist", env.Message)
}

func TestSubscribe(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, httptest.NewRequest(http.MethodPost, "/subscriptions/bob", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/subscriptions/bob", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec, env := s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Subscribed successfully", env.Message)
	assert.Equal(t, app.Identity{UserID: 7}, s.channels.subscriber)
	assert.Equal(t, "bob", s.channels.channel)
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/teamloop/teamloop/internal/model"
	"github.com/teamloop/teamloop/internal/realtime"
	"github.com/teamloop/teamloop/pkg/config"
	"github.com/teamloop/teamloop/pkg/database"
	"github.com/teamloop/teamloop/pkg/jwtutil"
	"github.com/teamloop/teamloop/pkg/response"
)

// setupHandlers wires the handler package against a sqlmock-backed gorm
// connection, so the duplicate-key and transaction branches can be driven
// without a live database. TranslateError is on, as in production, so a
// 23505 from the mock surfaces as gorm.ErrDuplicatedKey.
func setupHandlers(t *testing.T) sqlmock.Sqlmock {
	t.Helper()

	jwtutil.Initialize(&config.JWTConfig{SigningKey: "handler-test-key"})
	Init(realtime.NewHub(zap.NewNop()), &config.Config{
		Chat: config.ChatConfig{DefaultPageSize: 50, MaxPageSize: 200},
	})

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	prev := database.DB
	database.DB = gdb
	t.Cleanup(func() {
		database.DB = prev
		_ = sqlDB.Close()
	})
	return mock
}

func newTestContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func asUser(c echo.Context, userID, tenantID uint, role string) {
	c.Set("user", &jwtutil.UserClaims{UserID: userID, TenantID: tenantID, Role: role})
	c.Set("path_tenant_id", tenantID)
}

// invoke runs a handler and routes its error through the same central
// handler the server uses, so the recorder holds the real wire response.
func invoke(t *testing.T, h echo.HandlerFunc, c echo.Context, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	if err := h(c); err != nil {
		response.ErrorHandler(zap.NewNop())(err, c)
	}
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func duplicateKeyErr(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint",
		ConstraintName: constraint,
	}
}

func channelRows(id, tenantID uint, name, chType string, createdBy uint, dmKey string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "tenant_id", "name", "type", "created_by", "dm_key"}).
		AddRow(id, tenantID, name, chType, createdBy, dmKey)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	mock := setupHandlers(t)

	// The tenant insert succeeds, the user insert trips the unique email
	// index, and the whole transaction rolls back.
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "tenants"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnError(duplicateKeyErr("uni_users_email"))
	mock.ExpectRollback()

	c, rec := newTestContext(http.MethodPost, "/api/v1/auth/register",
		`{"email":"founder@acme.test","password":"long-enough-pass","tenant_name":"Acme"}`)
	env := invoke(t, Register, c, rec)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "email already registered", env.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinChannelTwiceIsNoOp(t *testing.T) {
	mock := setupHandlers(t)

	mock.ExpectQuery(`SELECT \* FROM "channels"`).
		WillReturnRows(channelRows(10, 1, "general", model.ChannelTypePublic, 2, ""))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "channel_members"`).
		WillReturnError(duplicateKeyErr("idx_channel_members_pair"))
	mock.ExpectRollback()

	c, rec := newTestContext(http.MethodPost, "/", "")
	asUser(c, 5, 1, model.RoleMember)
	c.SetParamNames("id")
	c.SetParamValues("10")
	env := invoke(t, JoinChannel, c, rec)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "already a member", env.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDirectMessageRaceReturnsExisting(t *testing.T) {
	mock := setupHandlers(t)

	// Recipient exists, no channel for the pair yet
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "email", "is_active"}).
			AddRow(9, 1, "peer@acme.test", true))
	mock.ExpectQuery(`SELECT \* FROM "channels"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	// A concurrent request wins the insert on dm_key
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "channels"`).
		WillReturnError(duplicateKeyErr("idx_channels_dm_key"))
	mock.ExpectRollback()

	// The loser looks up the winner's row instead of failing
	mock.ExpectQuery(`SELECT \* FROM "channels"`).
		WillReturnRows(channelRows(42, 1, "", model.ChannelTypeDirect, 9, model.DMKeyFor(5, 9)))
	mock.ExpectQuery(`SELECT \* FROM "channel_members"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "channel_id", "user_id", "role"}).
			AddRow(1, 42, 5, model.ChannelRoleMember).
			AddRow(2, 42, 9, model.ChannelRoleMember))
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "email"}).
			AddRow(5, 1, "me@acme.test").
			AddRow(9, 1, "peer@acme.test"))

	c, rec := newTestContext(http.MethodPost, "/", `{"recipient_id":9}`)
	asUser(c, 5, 1, model.RoleMember)
	env := invoke(t, CreateDirectMessage, c, rec)

	require.Equal(t, http.StatusOK, rec.Code, "race must answer 200, not 201")
	assert.True(t, env.Success)

	var got model.Channel
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, uint(42), got.ID)
	assert.Equal(t, model.ChannelTypeDirect, got.Type)
	assert.Len(t, got.Members, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteChannelCascadesThenHidesMessages(t *testing.T) {
	mock := setupHandlers(t)

	mock.ExpectQuery(`SELECT \* FROM "channels"`).
		WillReturnRows(channelRows(10, 1, "general", model.ChannelTypePublic, 2, ""))

	// Messages, memberships and the channel itself go in one transaction
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "messages"`).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM "channel_members"`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE "channels" SET "deleted_at"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, rec := newTestContext(http.MethodDelete, "/", "")
	asUser(c, 2, 1, model.RoleAdmin)
	c.SetParamNames("id")
	c.SetParamValues("10")
	env := invoke(t, DeleteChannel, c, rec)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "channel deleted", env.Message)

	// The soft-deleted channel no longer resolves, so its messages answer
	// NotFound afterwards
	mock.ExpectQuery(`SELECT \* FROM "channels"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	c2, rec2 := newTestContext(http.MethodGet, "/", "")
	asUser(c2, 2, 1, model.RoleAdmin)
	c2.SetParamNames("id")
	c2.SetParamValues("10")
	env2 := invoke(t, ListMessages, c2, rec2)

	assert.Equal(t, http.StatusNotFound, rec2.Code)
	assert.False(t, env2.Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetChannelFallsBackWhenMemberExpansionFails(t *testing.T) {
	mock := setupHandlers(t)

	mock.ExpectQuery(`SELECT \* FROM "channels"`).
		WillReturnRows(channelRows(10, 1, "general", model.ChannelTypePublic, 2, ""))
	// The member expansion re-fetch hits a transient failure
	mock.ExpectQuery(`SELECT \* FROM "channels"`).
		WillReturnError(errors.New("connection reset by peer"))

	c, rec := newTestContext(http.MethodGet, "/", "")
	asUser(c, 5, 1, model.RoleMember)
	c.SetParamNames("id")
	c.SetParamValues("10")
	env := invoke(t, GetChannel, c, rec)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var got model.Channel
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, uint(10), got.ID)
	assert.Equal(t, "general", got.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

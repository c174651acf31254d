package httpadapter

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"lockerkiosk/internal/app/access"
	"lockerkiosk/internal/app/audit"
	"lockerkiosk/internal/app/board"
	"lockerkiosk/internal/app/bulk"
	"lockerkiosk/internal/app/intake"
	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/config"
	"lockerkiosk/internal/domain/locker"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const adminTokenHeader = "X-Admin-Token"

type Selector interface {
	SelectLocker(ctx context.Context, n locker.Number) (access.Result, error)
}

type Administrator interface {
	AdminBind(ctx context.Context, n locker.Number, card string) (access.AdminResult, error)
	AdminReset(ctx context.Context, n locker.Number) (access.AdminResult, error)
	AdminOpen(ctx context.Context, n locker.Number) error
}

type BulkStarter interface {
	Start() (<-chan bulk.Report, error)
}

type SettingsEditor interface {
	Current() (config.Config, error)
	SaveSettings(s config.Settings) (config.Config, error)
}

type Handler struct {
	IntakeUC intake.UseCase
	BoardUC  board.UseCase
	AuditUC  audit.UseCase
	Kiosk    Selector
	Admin    Administrator
	Bulk     BulkStarter
	Settings SettingsEditor
	// AdminToken, when set, must match the X-Admin-Token header on admin routes.
	AdminToken string
	CORSOrigin string
	KPI        kpiSnapshotProvider
	Metrics    http.Handler
}

func (h Handler) RegisterRoutes(s *server.Hertz) {
	s.Use(corsMiddleware(h.CORSOrigin))

	s.GET("/card-event", h.cardEvent)
	s.POST("/card-event", h.cardEvent)

	api := s.Group("/api")
	api.GET("/board", h.board)
	api.POST("/lockers/:number/select", h.selectLocker)

	admin := s.Group("/api/admin", h.requireAdmin())
	admin.POST("/lockers/:number/bind", h.adminBind)
	admin.POST("/lockers/:number/reset", h.adminReset)
	admin.POST("/lockers/:number/open", h.adminOpen)
	admin.POST("/open-all", h.openAll)
	admin.GET("/audit", h.auditList)
	admin.GET("/settings", h.getSettings)
	admin.PUT("/settings", h.putSettings)

	s.GET("/ops/kpi", h.kpi)
	if h.Metrics != nil {
		s.GET("/metrics", adaptor.HertzHandler(h.Metrics))
	}
}

// cardEvent answers 200 on every path so the reader never retries.
func (h Handler) cardEvent(c context.Context, ctx *app.RequestContext) {
	resp := h.IntakeUC.Execute(c, intake.Request{
		FormCardID: string(ctx.FormValue("card_id")),
		RawBody:    string(ctx.Request.Body()),
	})
	if !resp.Accepted {
		ctx.String(consts.StatusOK, "No Data")
		return
	}
	ctx.String(consts.StatusOK, "OK")
}

func (h Handler) board(c context.Context, ctx *app.RequestContext) {
	resp, err := h.BoardUC.Execute(c)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) selectLocker(c context.Context, ctx *app.RequestContext) {
	n, err := lockerParam(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	resp, err := h.Kiosk.SelectLocker(c, n)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

type bindRequest struct {
	CardID string `json:"card_id"`
}

func (h Handler) adminBind(c context.Context, ctx *app.RequestContext) {
	n, err := lockerParam(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	var body bindRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	resp, err := h.Admin.AdminBind(c, n, body.CardID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) adminReset(c context.Context, ctx *app.RequestContext) {
	n, err := lockerParam(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	resp, err := h.Admin.AdminReset(c, n)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) adminOpen(c context.Context, ctx *app.RequestContext) {
	n, err := lockerParam(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if err := h.Admin.AdminOpen(c, n); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"locker": n, "opened": true})
}

func (h Handler) openAll(c context.Context, ctx *app.RequestContext) {
	done, err := h.Bulk.Start()
	if err != nil {
		writeError(ctx, err)
		return
	}
	go func() {
		rep := <-done
		hlog.CtxInfof(context.WithoutCancel(c), "bulk open finished: opened=%d failed=%d cancelled=%t",
			len(rep.Opened), len(rep.Failed), rep.Cancelled)
	}()
	ctx.JSON(consts.StatusAccepted, map[string]any{"started": true})
}

func (h Handler) auditList(c context.Context, ctx *app.RequestContext) {
	limit, _ := strconv.Atoi(string(ctx.Query("limit")))
	resp, err := h.AuditUC.Execute(c, audit.Request{
		Limit: limit,
		Type:  string(ctx.Query("type")),
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

type settingsResponse struct {
	BaseURL    string `json:"base_url"`
	TokenSet   bool   `json:"token_set"`
	ZoneID     int    `json:"zone_id"`
	ServerPort int    `json:"server_port"`
}

func toSettingsResponse(cfg config.Config) settingsResponse {
	return settingsResponse{
		BaseURL:    cfg.BaseURL,
		TokenSet:   cfg.Token != "",
		ZoneID:     cfg.ZoneID,
		ServerPort: cfg.ServerPort,
	}
}

func (h Handler) getSettings(_ context.Context, ctx *app.RequestContext) {
	if h.Settings == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "settings not configured")
		return
	}
	cfg, err := h.Settings.Current()
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, toSettingsResponse(cfg))
}

type settingsRequest struct {
	BaseURL    *string `json:"base_url"`
	Token      *string `json:"token"`
	ZoneID     *int    `json:"zone_id"`
	ServerPort *int    `json:"server_port"`
}

// putSettings merges the provided fields over the current settings.
func (h Handler) putSettings(c context.Context, ctx *app.RequestContext) {
	if h.Settings == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "settings not configured")
		return
	}
	var body settingsRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	cur, err := h.Settings.Current()
	if err != nil {
		writeError(ctx, err)
		return
	}
	next := cur.Settings()
	if body.BaseURL != nil {
		next.BaseURL = *body.BaseURL
	}
	if body.Token != nil {
		next.Token = *body.Token
	}
	if body.ZoneID != nil {
		next.ZoneID = *body.ZoneID
	}
	if body.ServerPort != nil {
		next.ServerPort = *body.ServerPort
	}
	cfg, err := h.Settings.SaveSettings(next)
	if err != nil {
		writeError(ctx, err)
		return
	}
	hlog.CtxInfof(c, "settings updated: base_url=%s zone_id=%d server_port=%d", cfg.BaseURL, cfg.ZoneID, cfg.ServerPort)
	ctx.JSON(consts.StatusOK, toSettingsResponse(cfg))
}

type kpiSnapshotProvider interface {
	SnapshotAny() any
}

func (h Handler) kpi(_ context.Context, ctx *app.RequestContext) {
	if h.KPI == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "kpi provider not configured")
		return
	}
	ctx.JSON(consts.StatusOK, h.KPI.SnapshotAny())
}

var ErrInvalidLockerNumber = errors.New("invalid locker number")
var ErrAdminUnauthorized = errors.New("invalid admin token")

func (h Handler) requireAdmin() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		if h.AdminToken == "" {
			ctx.Next(c)
			return
		}
		got := strings.TrimSpace(string(ctx.GetHeader(adminTokenHeader)))
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.AdminToken)) != 1 {
			writeError(ctx, ErrAdminUnauthorized)
			ctx.Abort()
			return
		}
		ctx.Next(c)
	}
}

func lockerParam(ctx *app.RequestContext) (locker.Number, error) {
	n, err := strconv.Atoi(ctx.Param("number"))
	if err != nil {
		return 0, ErrInvalidLockerNumber
	}
	return locker.Number(n), nil
}

func decodeJSON(ctx *app.RequestContext, out any) error {
	body := ctx.Request.Body()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func writeError(ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, ErrAdminUnauthorized):
		writeErrorBody(ctx, consts.StatusUnauthorized, "admin_unauthorized", err.Error())
	case errors.Is(err, ErrInvalidLockerNumber),
		errors.Is(err, access.ErrInvalidSelection):
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_locker", err.Error())
	case errors.Is(err, audit.ErrInvalidRequest),
		errors.Is(err, config.ErrInvalidConfig):
		writeErrorBody(ctx, consts.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, access.ErrNoCardPresented):
		writeErrorBody(ctx, consts.StatusConflict, "no_card_presented", err.Error())
	case errors.Is(err, access.ErrNotYourLocker):
		writeErrorBody(ctx, consts.StatusConflict, "not_your_locker", "Not your locker")
	case errors.Is(err, bulk.ErrBulkRunning):
		writeErrorBody(ctx, consts.StatusConflict, "bulk_running", err.Error())
	case errors.Is(err, ports.ErrActuatorTimeout):
		writeErrorBody(ctx, consts.StatusGatewayTimeout, "actuator_timeout", err.Error())
	case errors.Is(err, ports.ErrActuatorRejected):
		writeErrorBody(ctx, consts.StatusBadGateway, "actuator_rejected", err.Error())
	case errors.Is(err, ports.ErrActuatorUnreachable):
		writeErrorBody(ctx, consts.StatusBadGateway, "actuator_unreachable", err.Error())
	case errors.Is(err, ports.ErrPersistence):
		writeErrorBody(ctx, consts.StatusInternalServerError, "persistence_failure", err.Error())
	case errors.Is(err, ports.ErrNotFound):
		writeErrorBody(ctx, consts.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ports.ErrConflict):
		writeErrorBody(ctx, consts.StatusConflict, "conflict", err.Error())
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		writeErrorBody(ctx, consts.StatusRequestTimeout, "request_cancelled", err.Error())
	default:
		writeErrorBody(ctx, consts.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeErrorBody(ctx *app.RequestContext, status int, code, message string) {
	ctx.JSON(status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

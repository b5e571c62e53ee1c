package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/automation"
	"github.com/GriffinCanCode/readerfleet/internal/domain/handlers"
	"github.com/GriffinCanCode/readerfleet/internal/shared/utils"
)

// Handlers exposes the automation service over HTTP
type Handlers struct {
	svc     *automation.Service
	metrics *HandlerMetrics
	logger  *zap.Logger
	started time.Time
}

// NewHandlers creates the handler set
func NewHandlers(svc *automation.Service, metrics *HandlerMetrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		svc:     svc,
		metrics: metrics,
		logger:  logger,
		started: time.Now(),
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/transitions", h.Transitions)

	accounts := r.Group("/accounts")
	accounts.GET("", h.ListAccounts)
	accounts.GET("/:account/status", h.Status)
	accounts.GET("/:account/screenshot", h.Screenshot)
	accounts.GET("/:account/books", h.ListBooks)
	accounts.POST("/:account/actions/:action", h.ExecuteAction)
	accounts.POST("/:account/profile/:operation", h.ManageProfile)

	r.POST("/admin/idle-sweep", h.IdleSweep)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "readerfleet",
		"version": "0.1.0",
	})
}

// Health reports fleet and lane usage
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
		"fleet":  h.svc.Lifecycle().Fleet(),
		"lanes":  h.svc.Lanes(),
	})
}

// Transitions lists the transition table
func (h *Handlers) Transitions(c *gin.Context) {
	trs := h.svc.Transitions()
	c.JSON(http.StatusOK, gin.H{"transitions": trs, "count": len(trs)})
}

// ListAccounts lists every known profile
func (h *Handlers) ListAccounts(c *gin.Context) {
	done := h.metrics.Track("list_accounts")
	list, err := h.svc.ListProfiles(c.Request.Context())
	done(err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": list, "count": len(list), "fleet": h.svc.Lifecycle().Fleet()})
}

// Status returns one account's profile, instance and in-flight request
func (h *Handlers) Status(c *gin.Context) {
	done := h.metrics.Track("status")
	st, err := h.svc.GetProfileStatus(c.Request.Context(), c.Param("account"))
	done(err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Screenshot returns the account's current screen as an image
func (h *Handlers) Screenshot(c *gin.Context) {
	done := h.metrics.Track("screenshot")
	shot, mime, err := h.svc.Screenshot(c.Request.Context(), c.Param("account"))
	done(err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, mime, shot)
}

// ExecuteAction runs an action. The body, if any, is a JSON object of
// action parameters.
func (h *Handlers) ExecuteAction(c *gin.Context) {
	params, err := readParams(c)
	if err != nil {
		badRequest(c, "invalid params: %v", err)
		return
	}

	accountID, action := c.Param("account"), c.Param("action")
	done := h.metrics.Track("execute_action")
	res, err := h.svc.ExecuteAction(c.Request.Context(), accountID, action, params)
	done(err)
	if err != nil {
		h.logger.Info("action failed",
			zap.String("account_id", accountID),
			zap.String("action", action),
			zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListBooks scans the account's library. An optional max_scrolls query
// bounds the scan.
func (h *Handlers) ListBooks(c *gin.Context) {
	params := handlers.Params{}
	if raw := c.Query("max_scrolls"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "invalid max_scrolls %q", raw)
			return
		}
		params["max_scrolls"] = n
	}

	done := h.metrics.Track("list_books")
	res, err := h.svc.ExecuteAction(c.Request.Context(), c.Param("account"), "list_books", params)
	done(err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ManageProfile runs create, switch, delete or recreate
func (h *Handlers) ManageProfile(c *gin.Context) {
	done := h.metrics.Track("manage_profile")
	res, err := h.svc.ManageProfile(c.Request.Context(), c.Param("account"), c.Param("operation"))
	done(err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// IdleSweepRequest is the body of an idle sweep request. An empty
// timeout uses the configured idle timeout.
type IdleSweepRequest struct {
	Timeout string `json:"timeout"`
}

// IdleSweep pauses instances idle past the given timeout
func (h *Handlers) IdleSweep(c *gin.Context) {
	var req IdleSweepRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, "invalid sweep request: %v", err)
			return
		}
	}
	var timeout time.Duration
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			badRequest(c, "invalid timeout %q", req.Timeout)
			return
		}
		timeout = d
	}

	done := h.metrics.Track("idle_sweep")
	report, err := h.svc.IdleSweep(c.Request.Context(), timeout)
	done(err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// readParams decodes an optional JSON object body
func readParams(c *gin.Context) (handlers.Params, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, utils.MaxParamsSize+1))
	if err != nil {
		return nil, err
	}
	if err := utils.DefaultParamsValidator().ValidateSize(body); err != nil {
		return nil, err
	}
	params := handlers.Params{}
	if len(body) == 0 {
		return params, nil
	}
	if err := sonic.ConfigStd.Unmarshal(body, &params); err != nil {
		return nil, err
	}
	if err := utils.ValidateParams(params); err != nil {
		return nil, err
	}
	return params, nil
}

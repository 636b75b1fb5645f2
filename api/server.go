package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ArbMon-Fusion/dca-engine/config"
	"github.com/ArbMon-Fusion/dca-engine/internal/approval"
	"github.com/ArbMon-Fusion/dca-engine/internal/scheduler"
	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
	"github.com/ArbMon-Fusion/dca-engine/service"
	"github.com/ArbMon-Fusion/dca-engine/storage"
)

type CustomValidator struct {
	validate *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// Server exposes the store, scheduler and swap operations over HTTP.
type Server struct {
	cfg      config.Config
	store    storage.Store
	sched    *scheduler.Scheduler
	swapSvc  *service.SwapService
	approval *approval.Checker
	logger   *logrus.Logger
	echo     *echo.Echo
}

func NewServer(
	cfg config.Config,
	store storage.Store,
	sched *scheduler.Scheduler,
	swapSvc *service.SwapService,
	checker *approval.Checker,
	logger *logrus.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		cfg:      cfg,
		store:    store,
		sched:    sched,
		swapSvc:  swapSvc,
		approval: checker,
		logger:   logger,
		echo:     e,
	}

	e.GET("/healthz", s.health)

	api := e.Group("/api")
	api.GET("/dca-data", s.exportData)
	api.POST("/dca-data", s.importData)

	api.GET("/users/:address", s.getUser)
	api.GET("/users/:address/stats", s.getUserStats)
	api.GET("/users/:address/history", s.getUserHistory)
	api.GET("/users/:address/readiness", s.getReadiness)
	api.GET("/users/:address/approval", s.getApproval)

	api.POST("/users/:address/investments", s.createInvestment)
	api.POST("/users/:address/investments/:id/stop", s.stopInvestment)
	api.DELETE("/users/:address/investments/:id", s.removeInvestment)

	api.POST("/swap", s.executeSwap)

	api.GET("/scheduler/status", s.schedulerStatus)
	api.POST("/scheduler/check", s.schedulerCheck)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.WithField("addr", addr).Info("http server listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server stopped: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) exportData(c echo.Context) error {
	snap, err := s.store.Export(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) importData(c echo.Context) error {
	var snap types.Snapshot
	if err := c.Bind(&snap); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid snapshot payload")
	}
	if err := s.store.Import(c.Request().Context(), &snap); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "imported"})
}

func (s *Server) getUser(c echo.Context) error {
	address, err := parseAddress(c)
	if err != nil {
		return err
	}
	rec, err := s.store.GetUserRecord(c.Request().Context(), address)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) getUserStats(c echo.Context) error {
	address, err := parseAddress(c)
	if err != nil {
		return err
	}
	stats, err := s.store.ComputeUserStats(c.Request().Context(), address)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) getUserHistory(c echo.Context) error {
	address, err := parseAddress(c)
	if err != nil {
		return err
	}
	rec, err := s.store.GetUserRecord(c.Request().Context(), address)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, rec.History)
}

func (s *Server) getReadiness(c echo.Context) error {
	address, err := parseAddress(c)
	if err != nil {
		return err
	}
	amount := c.QueryParam("amount")
	if amount == "" {
		// no explicit amount: project the user's active per-execution sum
		rec, err := s.store.GetUserRecord(c.Request().Context(), address)
		if err != nil {
			return s.fail(c, err)
		}
		amount = "0"
		for _, inv := range rec.Investments {
			if !inv.IsActive {
				continue
			}
			sum, err := types.AddDecimal(amount, inv.Amount)
			if err != nil {
				return s.fail(c, err)
			}
			amount = sum
		}
	}
	executions, _ := strconv.Atoi(c.QueryParam("executions"))

	r, err := s.approval.CheckReadiness(c.Request().Context(), common.HexToAddress(address), amount, executions)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) getApproval(c echo.Context) error {
	address, err := parseAddress(c)
	if err != nil {
		return err
	}
	required := c.QueryParam("amount")
	if required == "" {
		required = "0"
	}
	st := s.approval.CheckApproval(c.Request().Context(), common.HexToAddress(address), required)
	resp := map[string]interface{}{"status": st}
	if amount := c.QueryParam("amount"); amount != "" {
		token, data, err := s.approval.ApprovalCallData(amount)
		if err != nil {
			return s.fail(c, err)
		}
		resp["approval_call"] = map[string]string{
			"to":   token.Hex(),
			"data": hexutil.Encode(data),
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type createInvestmentRequest struct {
	Amount          string             `json:"amount" validate:"required"`
	IntervalMinutes int                `json:"interval_minutes" validate:"required,gt=0"`
	Direction       types.Direction    `json:"direction" validate:"required"`
	SignedOrder     *types.SignedOrder `json:"signed_order,omitempty"`
}

func (s *Server) createInvestment(c echo.Context) error {
	address, err := parseAddress(c)
	if err != nil {
		return err
	}
	var req createInvestmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	inv, err := s.swapSvc.CreateInvestment(
		c.Request().Context(), address, req.Amount, req.IntervalMinutes, req.Direction, req.SignedOrder)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, inv)
}

func (s *Server) stopInvestment(c echo.Context) error {
	address, err := parseAddress(c)
	if err != nil {
		return err
	}
	if err := s.store.DeactivateInvestment(c.Request().Context(), address, c.Param("id")); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) removeInvestment(c echo.Context) error {
	address, err := parseAddress(c)
	if err != nil {
		return err
	}
	if err := s.store.RemoveInvestment(c.Request().Context(), address, c.Param("id")); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
}

type executeSwapRequest struct {
	Address   string          `json:"address" validate:"required"`
	Amount    string          `json:"amount" validate:"required"`
	Direction types.Direction `json:"direction" validate:"required"`
}

func (s *Server) executeSwap(c echo.Context) error {
	var req executeSwapRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, signed, err := s.swapSvc.ExecuteSwapNow(c.Request().Context(), req.Address, req.Amount, req.Direction)
	if err != nil {
		resp := map[string]interface{}{"error": err.Error()}
		if res != nil {
			resp["partial_result"] = res
		}
		return c.JSON(statusFor(err), resp)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"result":     res,
		"order_hash": signed.OrderHash,
	})
}

func (s *Server) schedulerStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.Status())
}

func (s *Server) schedulerCheck(c echo.Context) error {
	if err := s.sched.TriggerCheck(c.Request().Context()); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "pass complete"})
}

func (s *Server) fail(c echo.Context, err error) error {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request().Method,
		"path":   c.Path(),
	}).Error("request failed")
	return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch swaperr.KindOf(err) {
	case swaperr.KindNotFound:
		return http.StatusNotFound
	case swaperr.KindConfig:
		return http.StatusBadRequest
	case swaperr.KindFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func parseAddress(c echo.Context) (string, error) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid address: %q", address))
	}
	return common.HexToAddress(address).Hex(), nil
}

package session

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tsubasa-k/Single-Login/internal/apperror"
	"github.com/tsubasa-k/Single-Login/internal/audit"
)

// Handler exposes the coordinator over a JSON API. Handlers are thin: they
// bind the request, call the coordinator, and render the response. No
// business logic lives here.
type Handler struct {
	coord *Coordinator
	trail audit.Service
}

// NewHandler creates a new session handler.
func NewHandler(coord *Coordinator, trail audit.Service) *Handler {
	return &Handler{coord: coord, trail: trail}
}

// Register handles POST /api/register.
func (h *Handler) Register(c echo.Context) error {
	var req RegisterInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	req.Address = c.RealIP()

	if err := h.coord.Register(c.Request().Context(), req); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"message": "account created - check your inbox for the verification link",
	})
}

// Login handles POST /api/login. A paused attempt surfaces as a 401 with
// needsStepUp set; the client follows up on /api/stepup/verify.
func (h *Handler) Login(c echo.Context) error {
	var req LoginInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	req.Address = c.RealIP()

	result, err := h.coord.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// ProvisionStepUp handles POST /api/stepup/provision. Runs behind
// RequireSession: enrollment mutates the factor, so only the account's
// active session may trigger it. The response carries the secret and
// enrollment URI exactly once; they are never shown again.
func (h *Handler) ProvisionStepUp(c echo.Context) error {
	username := AuthenticatedUsername(c)
	if username == "" {
		return apperror.NewUnauthenticated()
	}

	prov, err := h.coord.ProvisionStepUp(c.Request().Context(), username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, prov)
}

// ConfirmStepUp handles POST /api/stepup/confirm, behind RequireSession.
func (h *Handler) ConfirmStepUp(c echo.Context) error {
	username := AuthenticatedUsername(c)
	if username == "" {
		return apperror.NewUnauthenticated()
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.coord.ConfirmStepUp(c.Request().Context(), username, req.Code); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "step-up verification enabled",
	})
}

// VerifyStepUp handles POST /api/stepup/verify: code validation followed by
// session binding for a login paused on NeedsStepUp.
func (h *Handler) VerifyStepUp(c echo.Context) error {
	var req VerifyInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	req.Address = c.RealIP()

	result, err := h.coord.VerifyStepUpAndBind(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Logout handles POST /api/logout. The held session ID doubles as the
// proof of ownership, so a stale or repeated logout still succeeds while
// a caller without the credential is refused.
func (h *Handler) Logout(c echo.Context) error {
	var req struct {
		Username  string `json:"username"`
		SessionID string `json:"sessionId"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.coord.Logout(c.Request().Context(), req.Username, req.SessionID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "signed out"})
}

// ValidateSession handles POST /api/session/validate, the client's periodic
// re-validation probe. A 503 means "unknown, retry": the client must not
// drop its session on that answer.
func (h *Handler) ValidateSession(c echo.Context) error {
	var req ValidateInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	if req.Username == "" || req.DeviceID == "" || req.SessionID == "" {
		return apperror.NewBadRequest("username, deviceId and sessionId are required")
	}
	req.Address = c.RealIP()

	valid, err := h.coord.IsSessionStillValid(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"valid": valid})
}

// ConfirmEmail handles GET /api/email/confirm?token=..., the target of the
// emailed verification link.
func (h *Handler) ConfirmEmail(c echo.Context) error {
	token := c.QueryParam("token")

	if err := h.coord.ConfirmEmail(c.Request().Context(), token); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "email verified - you can sign in now",
	})
}

// Activity handles GET /api/accounts/:username/activity, the paginated
// authentication event feed. Behind RequireSession, and scoped to the
// caller's own account: the feed names addresses and device IDs.
func (h *Handler) Activity(c echo.Context) error {
	username := c.Param("username")
	if username != AuthenticatedUsername(c) {
		return apperror.NewForbidden("the activity feed is limited to your own account")
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))

	entries, total, err := h.trail.GetActivity(c.Request().Context(), username, page)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []audit.Entry{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}

package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/twofa/internal/twofa/service"
	"github.com/aussiebroadwan/twofa/pkg/authsdk"
	"github.com/aussiebroadwan/twofa/pkg/httpx"
	"github.com/aussiebroadwan/twofa/pkg/qrx"
	"github.com/aussiebroadwan/twofa/pkg/slogx"
)

const (
	msgRegistered    = "Security key successfully generated."
	msgVerified      = "Security key successfully verified."
	msgNotVerified   = "Security key NOT verified."
	msgValidated     = "Security key successfully validated."
	msgNotValidated  = "Security key NOT validated."
	qrCodeSizePixels = qrx.DefaultSize
)

// EnrollmentHandler serves registration, enrollment confirmation and validation.
type EnrollmentHandler struct {
	EnrollmentService *service.EnrollmentService
	Metrics           *Metrics
}

// HandleRegister handles POST /api/registration
//
//	@Summary		Register a new user
//	@Description	Creates an unverified user with a fresh shared secret. The secret is returned only here.
//	@Tags			Enrollment
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegistrationRequest		false	"Optional account label"
//	@Success		200		{object}	authsdk.RegistrationResponse	"User ID, secret, provisioning URL and QR code"
//	@Failure		400		{object}	authsdk.ErrorResponse			"Malformed body or invalid label"
//	@Failure		429		{object}	authsdk.ErrorResponse			"Too many registrations from this client"
//	@Failure		500		{object}	authsdk.ErrorResponse			"Internal server error"
//	@Router			/api/registration [post].
func (h *EnrollmentHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.RegistrationRequest
	if err := httpx.DecodeJSON(w, r, &req, true); err != nil {
		log.Warn("failed to parse request", "err", err)
		h.Metrics.registrations.WithLabelValues(outcomeBadRequest).Inc()
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	enrollment, err := h.EnrollmentService.Register(ctx, service.RegisterRequest{Label: req.Label})
	if err != nil {
		if errors.Is(err, service.ErrInvalidLabel) {
			h.Metrics.registrations.WithLabelValues(outcomeBadRequest).Inc()
			authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, err.Error()).WriteError(w)
			return
		}
		log.Error("failed to register user", "err", err)
		h.Metrics.registrations.WithLabelValues(outcomeError).Inc()
		authsdk.ErrServerError.WriteError(w)
		return
	}

	qr, err := qrx.DataURI(enrollment.ProvisioningURL, qrCodeSizePixels)
	if err != nil {
		// The record exists; the client can still enroll from the URL.
		log.Warn("failed to render qr code", "user_id", enrollment.Identity, "err", err)
	}

	log.Info("user registered", "user_id", enrollment.Identity)
	h.Metrics.registrations.WithLabelValues(outcomeSuccess).Inc()

	httpx.WriteJSON(w, http.StatusOK, authsdk.RegistrationResponse{
		UserID:     enrollment.Identity,
		UserKey:    enrollment.Secret,
		OTPAuthURL: enrollment.ProvisioningURL,
		QRCode:     qr,
		Response:   msgRegistered,
	})
}

// HandleVerify handles POST /api/key/verification
//
//	@Summary		Confirm enrollment
//	@Description	Checks the first code from the authenticator app and marks the user verified on a match.
//	@Description	A wrong code is not an error: the response carries verified=false.
//	@Tags			Enrollment
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.KeyRequest				true	"User ID and code"
//	@Success		200		{object}	authsdk.VerificationResponse	"Verification result"
//	@Failure		400		{object}	authsdk.ErrorResponse			"Malformed body"
//	@Failure		404		{object}	authsdk.ErrorResponse			"Unknown user"
//	@Failure		409		{object}	authsdk.ErrorResponse			"User already verified"
//	@Failure		500		{object}	authsdk.ErrorResponse			"Internal server error"
//	@Router			/api/key/verification [post].
func (h *EnrollmentHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	counter := h.Metrics.verifications

	req, ok := decodeKeyRequest(w, r)
	if !ok {
		counter.WithLabelValues(outcomeBadRequest).Inc()
		return
	}

	verified, err := h.EnrollmentService.ConfirmEnrollment(ctx, req.UserID, req.UserToken, h.EnrollmentService.Clock())
	switch {
	case errors.Is(err, service.ErrUnknownIdentity):
		counter.WithLabelValues(outcomeUnknownUser).Inc()
		authsdk.ErrUnknownUser.WriteError(w)
		return
	case errors.Is(err, service.ErrAlreadyVerified):
		counter.WithLabelValues(outcomeAlreadyVerified).Inc()
		authsdk.ErrAlreadyVerified.WriteError(w)
		return
	case err != nil:
		log.Error("failed to confirm enrollment", "user_id", req.UserID, "err", err)
		counter.WithLabelValues(outcomeError).Inc()
		authsdk.ErrServerError.WriteError(w)
		return
	}

	resp := authsdk.VerificationResponse{Verified: verified, Response: msgNotVerified}
	if verified {
		log.Info("enrollment confirmed", "user_id", req.UserID)
		resp.Response = msgVerified
		counter.WithLabelValues(outcomeSuccess).Inc()
	} else {
		counter.WithLabelValues(outcomeMismatch).Inc()
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleValidate handles POST /api/key/validation
//
//	@Summary		Validate a code
//	@Description	Checks a code for a registered user. Never changes the user's verification status.
//	@Tags			Enrollment
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.KeyRequest			true	"User ID and code"
//	@Success		200		{object}	authsdk.ValidationResponse	"Validation result"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Malformed body"
//	@Failure		404		{object}	authsdk.ErrorResponse		"Unknown user"
//	@Failure		500		{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/api/key/validation [post].
func (h *EnrollmentHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	counter := h.Metrics.validations

	req, ok := decodeKeyRequest(w, r)
	if !ok {
		counter.WithLabelValues(outcomeBadRequest).Inc()
		return
	}

	validated, err := h.EnrollmentService.Validate(ctx, req.UserID, req.UserToken, h.EnrollmentService.Clock())
	switch {
	case errors.Is(err, service.ErrUnknownIdentity):
		counter.WithLabelValues(outcomeUnknownUser).Inc()
		authsdk.ErrUnknownUser.WriteError(w)
		return
	case err != nil:
		log.Error("failed to validate code", "user_id", req.UserID, "err", err)
		counter.WithLabelValues(outcomeError).Inc()
		authsdk.ErrServerError.WriteError(w)
		return
	}

	resp := authsdk.ValidationResponse{Validated: validated, Response: msgNotValidated}
	if validated {
		resp.Response = msgValidated
		counter.WithLabelValues(outcomeSuccess).Inc()
	} else {
		counter.WithLabelValues(outcomeMismatch).Inc()
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// decodeKeyRequest parses a KeyRequest and writes a 400 when it is unusable.
func decodeKeyRequest(w http.ResponseWriter, r *http.Request) (authsdk.KeyRequest, bool) {
	var req authsdk.KeyRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		slogx.FromContext(r.Context()).Warn("failed to parse request", "err", err)
		authsdk.ErrInvalidRequest.WriteError(w)
		return req, false
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.UserToken = strings.TrimSpace(req.UserToken)
	if req.UserID == "" || req.UserToken == "" {
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest,
			"user_id and user_token are required").WriteError(w)
		return req, false
	}

	return req, true
}

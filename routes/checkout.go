package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zhifu/sumup-terminal/models"
	"github.com/zhifu/sumup-terminal/services"
)

type checkoutPage struct {
	basePage
	Terminals []models.Terminal
	Form      services.CheckoutForm
	Currency  string
	MinorUnit int
	Outcome   *services.CheckoutOutcome
	Upstream  *services.UpstreamError
}

func (ar *APIRoutes) newCheckoutPage(c *gin.Context) (*checkoutPage, error) {
	terminals, err := ar.terminals.All()
	if err != nil {
		return nil, err
	}
	return &checkoutPage{
		basePage:  ar.base(c, "Checkout", "checkout"),
		Terminals: terminals,
		Form:      services.CheckoutForm{ForeignTransactionID: services.GenerateForeignTransactionID()},
		Currency:  ar.cfg.SumUp.Currency,
		MinorUnit: ar.cfg.SumUp.MinorUnit,
	}, nil
}

// CheckoutPage renders the payment form.
func (ar *APIRoutes) CheckoutPage(c *gin.Context) {
	page, err := ar.newCheckoutPage(c)
	if err != nil {
		ar.logger.Error("load terminals", "error", err)
		ar.renderError(c, http.StatusInternalServerError, "The terminal list could not be read.")
		return
	}
	if len(page.Terminals) == 0 {
		page.Hints = []string{"No terminal is configured yet. Add one on the terminals page."}
	}
	c.HTML(http.StatusOK, "checkout.html", page)
}

// SubmitCheckout sends the form to the selected terminal.
func (ar *APIRoutes) SubmitCheckout(c *gin.Context) {
	page, err := ar.newCheckoutPage(c)
	if err != nil {
		ar.logger.Error("load terminals", "error", err)
		ar.renderError(c, http.StatusInternalServerError, "The terminal list could not be read.")
		return
	}

	var form services.CheckoutForm
	if err := c.ShouldBind(&form); err != nil {
		page.Errors = []string{"The form could not be read."}
		c.HTML(http.StatusBadRequest, "checkout.html", page)
		return
	}

	outcome, err := ar.checkout.Submit(c.Request.Context(), page.User, form)
	if err != nil {
		page.Form = form
		c.HTML(ar.checkoutErrorStatus(c, page, err), "checkout.html", page)
		return
	}

	page.Outcome = outcome
	page.Success = outcome.Message()
	// next payment gets a fresh id on the same terminal
	page.Form = services.CheckoutForm{
		TerminalID:           form.TerminalID,
		Currency:             form.Currency,
		MinorUnit:            form.MinorUnit,
		ForeignTransactionID: services.GenerateForeignTransactionID(),
	}
	c.HTML(http.StatusOK, "checkout.html", page)
}

func (ar *APIRoutes) checkoutErrorStatus(c *gin.Context, page *checkoutPage, err error) int {
	var (
		verrs    services.ValidationErrors
		upstream *services.UpstreamError
	)
	switch {
	case errors.As(err, &verrs):
		page.Errors = verrs
		return http.StatusUnprocessableEntity
	case errors.As(err, &upstream):
		page.Upstream = upstream
		page.Errors = []string{upstream.Error()}
		page.Hints = upstream.Hints
		return http.StatusBadGateway
	case errors.Is(err, services.ErrPublishableKey), errors.Is(err, services.ErrEmptyCredential):
		page.Errors = []string{err.Error()}
		page.Hints = []string{"Check the API key stored for this terminal."}
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrTransport):
		page.Errors = []string{err.Error()}
		return http.StatusBadGateway
	default:
		ar.logger.ErrorContext(c.Request.Context(), "checkout failed", "error", err)
		page.Errors = []string{"The payment could not be processed."}
		return http.StatusInternalServerError
	}
}

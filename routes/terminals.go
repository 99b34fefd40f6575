package routes

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zhifu/sumup-terminal/models"
	"github.com/zhifu/sumup-terminal/services"
)

type terminalsPage struct {
	basePage
	Terminals []models.Terminal
	Form      services.TerminalForm
	Lookup    services.ReaderLookupForm
	Readers   []map[string]any
	Result    *services.APIResult
}

func (ar *APIRoutes) newTerminalsPage(c *gin.Context) (*terminalsPage, error) {
	terminals, err := ar.terminals.All()
	if err != nil {
		return nil, err
	}
	return &terminalsPage{
		basePage:  ar.base(c, "Terminals", "terminals"),
		Terminals: terminals,
		Lookup:    services.ReaderLookupForm{MerchantCode: ar.resolver.DefaultMerchantCode()},
	}, nil
}

func (ar *APIRoutes) renderTerminals(c *gin.Context, status int, page *terminalsPage) {
	// reload so the list reflects the change just made
	if terminals, err := ar.terminals.All(); err == nil {
		page.Terminals = terminals
	}
	c.HTML(status, "terminals.html", page)
}

func (ar *APIRoutes) TerminalsPage(c *gin.Context) {
	page, err := ar.newTerminalsPage(c)
	if err != nil {
		ar.logger.Error("load terminals", "error", err)
		ar.renderError(c, http.StatusInternalServerError, "The terminal list could not be read.")
		return
	}
	c.HTML(http.StatusOK, "terminals.html", page)
}

// AddTerminal stores a new terminal with its own API key.
func (ar *APIRoutes) AddTerminal(c *gin.Context) {
	page, err := ar.newTerminalsPage(c)
	if err != nil {
		ar.logger.Error("load terminals", "error", err)
		ar.renderError(c, http.StatusInternalServerError, "The terminal list could not be read.")
		return
	}

	var form services.TerminalForm
	if err := c.ShouldBind(&form); err != nil {
		page.Errors = []string{"The form could not be read."}
		ar.renderTerminals(c, http.StatusBadRequest, page)
		return
	}
	if err := form.Validate(); err != nil {
		page.Form = form
		page.Errors = errorMessages(err)
		ar.renderTerminals(c, http.StatusUnprocessableEntity, page)
		return
	}

	terminal, err := ar.terminals.Add(form.Terminal())
	if err != nil {
		ar.logger.Error("add terminal", "error", err)
		page.Form = form
		page.Errors = []string{"The terminal could not be saved."}
		ar.renderTerminals(c, http.StatusInternalServerError, page)
		return
	}
	ar.logger.Info("terminal added", "terminal_id", terminal.ID, "user", page.User)
	page.Success = "Terminal " + terminal.Label + " was added."
	ar.renderTerminals(c, http.StatusOK, page)
}

func (ar *APIRoutes) DeleteTerminal(c *gin.Context) {
	page, err := ar.newTerminalsPage(c)
	if err != nil {
		ar.logger.Error("load terminals", "error", err)
		ar.renderError(c, http.StatusInternalServerError, "The terminal list could not be read.")
		return
	}

	id := c.Param("id")
	switch err := ar.terminals.Remove(id); {
	case errors.Is(err, services.ErrTerminalNotFound):
		page.Errors = []string{"The terminal was not found."}
		ar.renderTerminals(c, http.StatusNotFound, page)
	case err != nil:
		ar.logger.Error("remove terminal", "terminal_id", id, "error", err)
		page.Errors = []string{"The terminal could not be removed."}
		ar.renderTerminals(c, http.StatusInternalServerError, page)
	default:
		ar.logger.Info("terminal removed", "terminal_id", id, "user", page.User)
		page.Success = "The terminal was removed."
		ar.renderTerminals(c, http.StatusOK, page)
	}
}

// FetchReaders lists the readers of a merchant account so their ids can be
// copied into the form.
func (ar *APIRoutes) FetchReaders(c *gin.Context) {
	page, err := ar.newTerminalsPage(c)
	if err != nil {
		ar.logger.Error("load terminals", "error", err)
		ar.renderError(c, http.StatusInternalServerError, "The terminal list could not be read.")
		return
	}

	var lookup services.ReaderLookupForm
	if err := c.ShouldBind(&lookup); err != nil {
		page.Errors = []string{"The form could not be read."}
		c.HTML(http.StatusBadRequest, "terminals.html", page)
		return
	}
	page.Lookup = lookup
	if err := page.Lookup.Validate(); err != nil {
		page.Errors = errorMessages(err)
		c.HTML(http.StatusUnprocessableEntity, "terminals.html", page)
		return
	}

	res, err := ar.client.ListTerminals(c.Request.Context(), page.Lookup.APIKey, services.AuthAPIKey, page.Lookup.MerchantCode)
	if err != nil {
		status, message := ar.clientErrorStatus(c, err)
		page.Errors = []string{message}
		c.HTML(status, "terminals.html", page)
		return
	}
	page.Result = res
	page.Lookup.APIKey = ""
	if !res.OK() {
		page.Errors = []string{fmt.Sprintf("SumUp could not list the readers (HTTP %d): %s", res.Status, services.ErrorDetail(res))}
		page.Hints = services.HintsForStatus(res.Status)
		c.HTML(http.StatusBadGateway, "terminals.html", page)
		return
	}

	page.Readers = services.ExtractReaders(res)
	if len(page.Readers) == 0 {
		page.Hints = []string{"SumUp returned no readers for this account."}
	}
	c.HTML(http.StatusOK, "terminals.html", page)
}

// clientErrorStatus maps an error returned by the SumUp client before or
// instead of an HTTP answer.
func (ar *APIRoutes) clientErrorStatus(c *gin.Context, err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrPublishableKey),
		errors.Is(err, services.ErrEmptyCredential),
		errors.Is(err, services.ErrInvalidActivationCode):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, services.ErrTransport):
		return http.StatusBadGateway, err.Error()
	default:
		ar.logger.ErrorContext(c.Request.Context(), "SumUp call failed", "error", err)
		return http.StatusInternalServerError, "The request to SumUp failed."
	}
}

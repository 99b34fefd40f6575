package routes

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zhifu/sumup-terminal/models"
	"github.com/zhifu/sumup-terminal/services"
)

type pairingPage struct {
	basePage
	Method  services.AuthMethod
	Options []services.CredentialOption
	Form    services.PairingForm
	Result  *services.APIResult
}

func (ar *APIRoutes) newPairingPage(c *gin.Context) *pairingPage {
	page := &pairingPage{
		basePage: ar.base(c, "Pair terminal", "pairing"),
		Method:   ar.resolver.Method(),
		Form:     services.PairingForm{MerchantCode: ar.resolver.DefaultMerchantCode()},
	}
	options, err := ar.resolver.Options()
	if err != nil {
		ar.logger.Warn("stored credential unavailable", "error", err)
		page.Hints = append(page.Hints, "The stored API key could not be read.")
	}
	page.Options = options
	if len(options) == 0 {
		page.Hints = append(page.Hints, "No credential is available. Store an API key on the credentials page or configure one.")
	}
	return page
}

func (ar *APIRoutes) PairingPage(c *gin.Context) {
	c.HTML(http.StatusOK, "pairing.html", ar.newPairingPage(c))
}

// ActivateTerminal pairs a reader using the code shown on its display.
func (ar *APIRoutes) ActivateTerminal(c *gin.Context) {
	page := ar.newPairingPage(c)

	var form services.PairingForm
	if err := c.ShouldBind(&form); err != nil {
		page.Errors = []string{"The form could not be read."}
		c.HTML(http.StatusBadRequest, "pairing.html", page)
		return
	}
	page.Form = form
	if err := page.Form.Validate(); err != nil {
		page.Errors = errorMessages(err)
		c.HTML(http.StatusUnprocessableEntity, "pairing.html", page)
		return
	}

	option, err := ar.resolver.Select(page.Form.CredentialSource)
	if err != nil {
		page.Errors = errorMessages(err)
		c.HTML(http.StatusUnprocessableEntity, "pairing.html", page)
		return
	}
	merchantCode := page.Form.MerchantCode
	if merchantCode == "" {
		merchantCode = option.MerchantCode
	}

	res, err := ar.client.ActivateTerminal(c.Request.Context(), option.Credential, ar.resolver.Method(),
		page.Form.ActivationCode, merchantCode, page.Form.Label)
	if err != nil {
		status, message := ar.clientErrorStatus(c, err)
		page.Errors = []string{message}
		c.HTML(status, "pairing.html", page)
		return
	}
	page.Result = res
	if !res.OK() {
		page.Errors = []string{fmt.Sprintf("Activation failed (HTTP %d): %s", res.Status, services.ErrorDetail(res))}
		page.Hints = services.HintsForStatus(res.Status)
		c.HTML(http.StatusBadGateway, "pairing.html", page)
		return
	}

	ar.logger.Info("terminal activated", "merchant_code", merchantCode, "user", page.User, "status", res.Status)
	page.Success, page.Hints = activationMessage(res, merchantCode, ar.resolver.Method())
	page.Form = services.PairingForm{MerchantCode: merchantCode}
	c.HTML(http.StatusOK, "pairing.html", page)
}

func activationMessage(res *services.APIResult, merchantCode string, method services.AuthMethod) (string, []string) {
	msg := "The terminal was activated"
	if merchantCode != "" {
		msg += " for merchant " + merchantCode
	}
	if id := res.StringField("id", "reader_id", "serial_number"); id != "" {
		msg += " (reader id " + id + ")"
	}
	msg += "."

	var hints []string
	if merchantCode == "" && method == services.AuthAPIKey {
		hints = append(hints, "No merchant code was given, so the account level endpoints were used.")
	}
	hints = append(hints, "Add the reader on the terminals page to send payments to it.")
	return msg, hints
}

type credentialsPage struct {
	basePage
	Method services.AuthMethod
	Stored *models.StoredCredential
	Form   services.CredentialForm
}

func (ar *APIRoutes) newCredentialsPage(c *gin.Context) *credentialsPage {
	page := &credentialsPage{
		basePage: ar.base(c, "Credentials", "credentials"),
		Method:   ar.resolver.Method(),
	}
	stored, err := ar.credentials.GetAPICredential()
	if err != nil {
		ar.logger.Warn("stored credential unavailable", "error", err)
	}
	page.Stored = stored
	if stored != nil {
		page.Form.MerchantID = stored.MerchantID
	}
	if page.Method == services.AuthOAuth {
		page.Hints = []string{"OAuth is configured; a stored API key is not used for pairing."}
	}
	return page
}

func (ar *APIRoutes) CredentialsPage(c *gin.Context) {
	c.HTML(http.StatusOK, "credentials.html", ar.newCredentialsPage(c))
}

// SaveCredentials stores or clears the encrypted account API key.
func (ar *APIRoutes) SaveCredentials(c *gin.Context) {
	var form services.CredentialForm
	if err := c.ShouldBind(&form); err != nil {
		page := ar.newCredentialsPage(c)
		page.Errors = []string{"The form could not be read."}
		c.HTML(http.StatusBadRequest, "credentials.html", page)
		return
	}
	if err := form.Validate(); err != nil {
		page := ar.newCredentialsPage(c)
		page.Form.MerchantID = form.MerchantID
		page.Errors = errorMessages(err)
		c.HTML(http.StatusUnprocessableEntity, "credentials.html", page)
		return
	}
	user := c.GetString(gin.AuthUserKey)

	if form.Action == "clear" {
		if err := ar.credentials.Clear(); err != nil {
			ar.logger.Error("clear credential", "error", err)
			page := ar.newCredentialsPage(c)
			page.Errors = []string{"The stored API key could not be removed."}
			c.HTML(http.StatusInternalServerError, "credentials.html", page)
			return
		}
		ar.logger.Info("stored credential cleared", "user", user)
		page := ar.newCredentialsPage(c)
		page.Success = "The stored API key was removed."
		c.HTML(http.StatusOK, "credentials.html", page)
		return
	}

	err := ar.credentials.SaveAPIKey(form.MerchantID, form.APIKey)
	switch {
	case errors.Is(err, services.ErrEmptyAPIKey), errors.Is(err, services.ErrPublishableKey):
		page := ar.newCredentialsPage(c)
		page.Form.MerchantID = form.MerchantID
		page.Errors = []string{err.Error()}
		c.HTML(http.StatusUnprocessableEntity, "credentials.html", page)
	case err != nil:
		ar.logger.Error("save credential", "error", err)
		page := ar.newCredentialsPage(c)
		page.Errors = []string{"The API key could not be saved."}
		c.HTML(http.StatusInternalServerError, "credentials.html", page)
	default:
		ar.logger.Info("credential stored", "user", user, "merchant_id", form.MerchantID)
		page := ar.newCredentialsPage(c)
		page.Success = "The API key was saved encrypted."
		c.HTML(http.StatusOK, "credentials.html", page)
	}
}

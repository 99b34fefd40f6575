package routes

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zhifu/sumup-terminal/config"
	"github.com/zhifu/sumup-terminal/services"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options carries everything the handlers depend on.
type Options struct {
	Config        *config.Config
	Authenticator *services.BasicAuthenticator
	Client        *services.SumUpClient
	Checkout      *services.CheckoutService
	Terminals     *services.TerminalStorage
	Transactions  *services.TransactionStorage
	Credentials   *services.CredentialStore
	Resolver      *services.CredentialResolver
	Webhooks      *services.WebhookIngestor
	Hub           *Hub
	Logger        *slog.Logger
}

type APIRoutes struct {
	cfg           *config.Config
	authenticator *services.BasicAuthenticator
	client        *services.SumUpClient
	checkout      *services.CheckoutService
	terminals     *services.TerminalStorage
	transactions  *services.TransactionStorage
	credentials   *services.CredentialStore
	resolver      *services.CredentialResolver
	webhooks      *services.WebhookIngestor
	hub           *Hub
	logger        *slog.Logger
}

func NewAPIRoutes(opts Options) *APIRoutes {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &APIRoutes{
		cfg:           opts.Config,
		authenticator: opts.Authenticator,
		client:        opts.Client,
		checkout:      opts.Checkout,
		terminals:     opts.Terminals,
		transactions:  opts.Transactions,
		credentials:   opts.Credentials,
		resolver:      opts.Resolver,
		webhooks:      opts.Webhooks,
		hub:           opts.Hub,
		logger:        logger,
	}
}

// Templates parses the embedded page templates.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"redact":     services.RedactCredential,
		"storageKey": services.SanitizeStorageKey,
		"pretty":     prettyJSON,
		"field":      field,
		"when":       formatTime,
	}).ParseFS(templateFS, "templates/*.html"))
}

// SetupRoutes registers every route. Only the webhook and the health check
// are reachable without Basic Auth.
func (ar *APIRoutes) SetupRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(Templates())

	router.Any("/webhook", ar.HandleWebhook)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	console := router.Group("/", BasicAuth(ar.authenticator))
	{
		console.GET("/", ar.CheckoutPage)
		console.POST("/checkout", ar.SubmitCheckout)

		console.GET("/transactions", ar.ListTransactions)
		console.POST("/transactions/status", ar.TransactionStatus)
		console.GET("/transactions/:key", ar.GetTransaction)
		console.GET("/transactions/:key/qrcode", ar.TransactionQRCode)

		console.GET("/terminals", ar.TerminalsPage)
		console.POST("/terminals", ar.AddTerminal)
		console.POST("/terminals/:id/delete", ar.DeleteTerminal)
		console.POST("/terminals/readers", ar.FetchReaders)

		console.GET("/pairing", ar.PairingPage)
		console.POST("/pairing", ar.ActivateTerminal)

		console.GET("/credentials", ar.CredentialsPage)
		console.POST("/credentials", ar.SaveCredentials)

		console.GET("/ws", ar.hub.ServeWS)
	}
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("02.01.2006 15:04:05")
}

// field prints a map value, or nothing when the key is absent.
func field(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// basePage holds what every console page shows.
type basePage struct {
	Title   string
	Active  string
	User    string
	Errors  []string
	Success string
	Hints   []string
}

func (ar *APIRoutes) base(c *gin.Context, title, active string) basePage {
	return basePage{Title: title, Active: active, User: c.GetString(gin.AuthUserKey)}
}

// errorMessages flattens validation errors into separate lines.
func errorMessages(err error) []string {
	var verrs services.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	return []string{err.Error()}
}

type errorPage struct {
	basePage
	Message string
}

func (ar *APIRoutes) renderError(c *gin.Context, status int, message string) {
	c.HTML(status, "error.html", errorPage{basePage: ar.base(c, "Error", ""), Message: message})
}

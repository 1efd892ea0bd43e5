package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/knadh/koanf/v2"
	"github.com/RUGU2211/beachguardians-verify/internal/codegen"
	"github.com/RUGU2211/beachguardians-verify/internal/profile"
	profileDynamo "github.com/RUGU2211/beachguardians-verify/internal/profile/dynamo"
	profileRedis "github.com/RUGU2211/beachguardians-verify/internal/profile/redis"
	"github.com/RUGU2211/beachguardians-verify/internal/store"
	storeRedis "github.com/RUGU2211/beachguardians-verify/internal/store/redis"
	"github.com/RUGU2211/beachguardians-verify/internal/verifier"
	"github.com/zerodha/logf"
)

type constants struct {
	OtpTTL  time.Duration
	RootURL string
}

// App is the global app context that groups the necessary controls
// (stores, config etc.) to be injected into the HTTP handlers.
type App struct {
	verifier  *verifier.Verifier
	otps      store.Store
	profiles  profile.Store
	lo        logf.Logger
	constants constants
}

var (
	ko = koanf.New(".")

	// Version of the build injected at build time.
	buildString = "unknown"
)

func main() {
	initConfig()

	lo := initLogger(ko.Bool("app.debug"))
	lo.Info("booting", "version", buildString)

	prov, err := initProvider(ko.String("app.provider"))
	if err != nil {
		lo.Fatal("error initializing provider", "error", err)
	}

	// Load the verification store.
	var rc storeRedis.Conf
	ko.UnmarshalWithConf("store.redis", &rc, koanf.UnmarshalConf{Tag: "json"})
	otps := storeRedis.New(rc)

	// Load the durable profile store and its advisory mirror. Writes go
	// through the composed fallback target; reads always hit the primary.
	var dc profileDynamo.Conf
	ko.UnmarshalWithConf("profile.dynamo", &dc, koanf.UnmarshalConf{Tag: "json"})
	profiles, err := profileDynamo.New(dc)
	if err != nil {
		lo.Fatal("error initializing profile store", "error", err)
	}

	var mc profileRedis.Conf
	ko.UnmarshalWithConf("store.redis", &mc, koanf.UnmarshalConf{Tag: "json"})
	mirror := profile.NewPrimaryWithFallback(profiles, profileRedis.New(mc), lo)

	// Message templates for the two subject classes.
	fs := initFS(lo)
	tpls, err := initTemplates(fs)
	if err != nil {
		lo.Fatal("error compiling templates", "error", err)
	}

	ttl := ko.Duration("app.otp_ttl") * time.Second
	if ttl.Seconds() < 1 {
		ttl = 10 * time.Minute
	}

	retry := verifier.RetryPolicy{
		MaxAttempts: ko.Int("profile.retry.max_attempts"),
		BaseDelay:   ko.Duration("profile.retry.base_delay") * time.Millisecond,
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 3
	}

	app := &App{
		verifier: verifier.New(codegen.New(ttl), otps, profiles, mirror, prov,
			tpls, retry, lo),
		otps:     otps,
		profiles: profiles,
		lo:       lo,

		constants: constants{
			OtpTTL:  ttl,
			RootURL: strings.TrimRight(ko.String("app.root_url"), "/"),
		},
	}

	authCreds := initAuth(lo)
	if len(authCreds) == 0 {
		lo.Fatal("no auth entries found in config")
	}

	// Register handles.
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("verifyd"))
	})
	r.Get("/api/health", wrap(app, handleHealthCheck))
	r.Put("/api/otp/admin", auth(authCreds, wrap(app, handleIssueAdminOTP)))
	r.Put("/api/otp/volunteer", auth(authCreds, wrap(app, handleIssueVolunteerOTP)))
	r.Post("/api/otp/admin/verify", auth(authCreds, wrap(app, handleVerifyAdminOTP)))
	r.Post("/api/otp/volunteer/verify", auth(authCreds, wrap(app, handleVerifyVolunteerOTP)))
	r.Get("/api/profiles/{uid}", auth(authCreds, wrap(app, handleGetProfile)))

	// HTTP Server.
	timeout := ko.Duration("app.server_timeout")
	if timeout.Seconds() < 1 {
		timeout = time.Second * 5
	}

	srv := &http.Server{
		Addr:         ko.String("app.address"),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		Handler:      r,
	}

	lo.Info("starting server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		lo.Fatal("couldn't start server", "error", err)
	}
}

package main

import (
	"fmt"
	"html/template"
	"log"
	"os"
	"strings"

	"github.com/Masterminds/sprig"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/knadh/stuffbin"
	pinpointprov "github.com/RUGU2211/beachguardians-verify/internal/providers/pinpoint"
	smtpprov "github.com/RUGU2211/beachguardians-verify/internal/providers/smtp"
	webhookprov "github.com/RUGU2211/beachguardians-verify/internal/providers/webhook"
	"github.com/RUGU2211/beachguardians-verify/internal/verifier"
	"github.com/RUGU2211/beachguardians-verify/pkg/models"
	flag "github.com/spf13/pflag"
	"github.com/zerodha/logf"
)

// Per-namespace message template files embedded in the binary.
var tplFiles = map[string]string{
	models.NamespaceAdmin:     "/static/admin_otp.html",
	models.NamespaceVolunteer: "/static/volunteer_otp.html",
}

func initConfig() {
	// Register --help handler.
	f := flag.NewFlagSet("config", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}
	f.StringSlice("config", []string{"config.toml"},
		"Path to one or more TOML config files to load in order")
	f.Bool("version", false, "Show build version")
	f.Parse(os.Args[1:])

	// Display version.
	if ok, _ := f.GetBool("version"); ok {
		fmt.Println(buildString)
		os.Exit(0)
	}

	// Read the config files.
	cFiles, _ := f.GetStringSlice("config")
	for _, c := range cFiles {
		log.Printf("reading config: %s", c)
		if err := ko.Load(file.Provider(c), toml.Parser()); err != nil {
			log.Printf("error reading config: %v", err)
		}
	}
	// Load environment variables and merge into the loaded config.
	if err := ko.Load(env.Provider("VERIFYD_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "VERIFYD_")), "__", ".", -1)
	}), nil); err != nil {
		log.Printf("error loading env config: %v", err)
	}

	ko.Load(posflag.Provider(f, ".", ko), nil)
}

func initLogger(debug bool) logf.Logger {
	opts := logf.Opts{EnableCaller: true}
	if debug {
		opts.Level = logf.DebugLevel
		opts.EnableColor = true
	}
	return logf.New(opts)
}

// initProvider initializes the configured notification dispatcher.
func initProvider(name string) (models.Provider, error) {
	switch name {
	case "smtp":
		var c smtpprov.Config
		ko.UnmarshalWithConf("provider.smtp", &c, koanf.UnmarshalConf{Tag: "json"})
		return smtpprov.New(c)
	case "pinpoint":
		var c pinpointprov.Config
		ko.UnmarshalWithConf("provider.pinpoint", &c, koanf.UnmarshalConf{Tag: "json"})
		return pinpointprov.NewSMS(c)
	case "webhook":
		var c webhookprov.Config
		ko.UnmarshalWithConf("provider.webhook", &c, koanf.UnmarshalConf{Tag: "json"})
		return webhookprov.New(c)
	}
	return nil, fmt.Errorf("unknown provider '%s'", name)
}

// initTemplates compiles the per-namespace subject and body templates.
// Bodies are embedded template files; subjects come from the config.
func initTemplates(fs stuffbin.FileSystem) (map[string]*verifier.Templates, error) {
	out := make(map[string]*verifier.Templates)
	for ns, fname := range tplFiles {
		b, err := fs.Read(fname)
		if err != nil {
			return nil, fmt.Errorf("error reading template %s: %v", fname, err)
		}

		body, err := template.New(ns).Funcs(sprig.HtmlFuncMap()).Parse(string(b))
		if err != nil {
			return nil, fmt.Errorf("error parsing template %s: %v", fname, err)
		}

		subj := ko.String("app.templates." + ns + ".subject")
		if subj == "" {
			subj = "Your verification code"
		}
		subjTpl, err := template.New("subject").Parse(subj)
		if err != nil {
			return nil, fmt.Errorf("error parsing subject for %s: %v", ns, err)
		}

		out[ns] = &verifier.Templates{
			Subject: subjTpl,
			Body:    body,
		}
	}

	return out, nil
}

// initAuth loads the username:secret authorisation maps.
func initAuth(lo logf.Logger) map[string]string {
	out := make(map[string]string)
	for _, a := range ko.MapKeys("auth") {
		k := ko.StringMap("auth." + a)
		var (
			username, _ = k["username"]
			secret, _   = k["secret"]
		)

		if username == "" || secret == "" {
			lo.Fatal("username or secret keys not found", "entry", "auth."+a)
		}
		out[username] = secret
	}

	return out
}

func initFS(lo logf.Logger) stuffbin.FileSystem {
	// Read stuffed data from self.
	fs, err := stuffbin.UnStuff(os.Args[0])
	if err != nil {
		// Binary is unstuffed or is running in dev mode.
		// Can halt here or fall back to the local filesystem.
		if err == stuffbin.ErrNoID {
			// First argument is to the root to mount the files in the FileSystem
			// and the rest of the arguments are paths to embed.
			fs, err = stuffbin.NewLocalFS("/", "static/")
			if err != nil {
				lo.Fatal("error falling back to local filesystem", "error", err)
			}
		} else {
			lo.Fatal("error reading stuffed binary", "error", err)
		}
	}

	return fs
}

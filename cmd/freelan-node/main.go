// Command freelan-node runs the coordination core standalone: it resolves
// a listen locator, opens a core against a configured engine and fabric,
// and blocks until interrupted (spec.md §1, §6).
package main

import (
	"crypto/x509"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/promoreira/freelan/adapter"
	"github.com/promoreira/freelan/core"
	"github.com/promoreira/freelan/internal/netutil"
	"github.com/promoreira/freelan/internal/xlog"
	"github.com/promoreira/freelan/netaddr"
)

var (
	listenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "local listen locator, host:port or literal address:port",
		Value: "0.0.0.0:12000",
	}
	staticContactFlag = cli.StringSliceFlag{
		Name:  "static-contact",
		Usage: "endpoint to greet on the static contact schedule, may be repeated",
	}
	neverContactFlag = cli.StringFlag{
		Name:  "never-contact",
		Usage: "comma-separated CIDR/IP never-contact list",
	}
	adapterModeFlag = cli.StringFlag{
		Name:  "adapter-mode",
		Usage: "switch or router",
		Value: "switch",
	}
	certFlag = cli.StringFlag{
		Name:  "cert",
		Usage: "path to this node's DER-encoded signing certificate",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "enable debug logging",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "freelan-node"
	app.Usage = "run the peer-to-peer VPN node coordination core"
	app.Flags = []cli.Flag{
		listenFlag,
		staticContactFlag,
		neverContactFlag,
		adapterModeFlag,
		certFlag,
		verboseFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	log := xlog.New("freelan-node")
	if ctx.Bool(verboseFlag.Name) {
		log.Logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := buildConfiguration(ctx, log)
	if err != nil {
		return err
	}

	eng := newLoopbackEngine()
	fab := newLoopbackFabric()

	coordinator := core.New(cfg, eng, fab)
	if err := coordinator.Open(); err != nil {
		return errors.Wrap(err, "opening core")
	}
	log.WithField("listen", coordinator.ListenAddress().String()).Info("freelan-node running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	return coordinator.Close()
}

func buildConfiguration(ctx *cli.Context, log *logrus.Entry) (*core.Configuration, error) {
	cfg := &core.Configuration{
		Logger: log,
	}

	host, service, err := splitLocator(ctx.String(listenFlag.Name))
	if err != nil {
		return nil, err
	}
	cfg.ListenLocator = netaddr.HostEndpoint(host, service)

	for _, raw := range ctx.StringSlice(staticContactFlag.Name) {
		h, s, err := splitLocator(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "static-contact %q", raw)
		}
		cfg.StaticContacts = append(cfg.StaticContacts, netaddr.HostEndpoint(h, s))
	}

	if list := ctx.String(neverContactFlag.Name); list != "" {
		parsed, err := netutil.ParseNetlist(list)
		if err != nil {
			return nil, errors.Wrap(err, "never-contact")
		}
		cfg.NeverContact = parsed
	}

	switch strings.ToLower(ctx.String(adapterModeFlag.Name)) {
	case "router":
		cfg.AdapterMode = adapter.RouterMode
	default:
		cfg.AdapterMode = adapter.SwitchMode
	}

	if path := ctx.String(certFlag.Name); path != "" {
		der, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading cert")
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, errors.Wrap(err, "parsing cert")
		}
		cfg.Identity.SignCert = cert
	}

	cfg.TrustPolicy = core.TrustNone
	cfg.AcceptContactRequests = true
	cfg.AcceptContacts = true

	return cfg, nil
}

func splitLocator(raw string) (host, service string, err error) {
	idx := strings.LastIndex(raw, ":")
	if idx < 0 {
		return raw, "", nil
	}
	return raw[:idx], raw[idx+1:], nil
}

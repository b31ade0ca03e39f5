// ceptrd runs a ceptr VM host: the built-in clock receptor plus a line
// listener that wraps every received unit as an external signal. It is a
// demonstration shell around the runtime, not part of the core.
package main

import (
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/urfave/cli"

	ceptr "go.dedis.ch/ceptr"
	"go.dedis.ch/ceptr/config"
	"go.dedis.ch/ceptr/log"
	"go.dedis.ch/ceptr/sem"
	"go.dedis.ch/ceptr/streamio"
)

func main() {
	app := cli.NewApp()
	app.Name = "ceptrd"
	app.Usage = "run a ceptr VM host"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "debug, d",
			Usage: "comma-separated debug categories (protocol,stream,socket,receptor,signal,tree or all)",
		},
		cli.StringFlag{
			Name:  "baseport, p",
			Usage: "TCP port for the line listener",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "TOML configuration file",
		},
		cli.StringFlag{
			Name:  "data",
			Usage: "data directory for the package store",
		},
		config.NewKVCliFlag(),
	}
	app.Action = runHost
	log.ErrFatal(app.Run(os.Args))
}

// buildHub layers the configuration: command line first, CEPTR_*
// environment second, the TOML file last. The file is the --config flag
// when given, otherwise the default location if a file exists there.
func buildHub(c *cli.Context) (*config.Hub, error) {
	sources := []config.Source{config.NewCliSource(c), config.NewEnvSource()}
	cfgFile := c.String("config")
	if cfgFile == "" {
		if _, err := os.Stat(config.DefaultFile()); err == nil {
			cfgFile = config.DefaultFile()
		}
	}
	if cfgFile != "" {
		ts, err := config.NewTomlSource(cfgFile)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ts)
	}
	return config.NewHub(sources...), nil
}

// setting reads a short flag name first, then its dotted config key.
func setting(src *config.Hub, flag, key, def string) string {
	if src.Defined(flag) {
		return src.String(flag)
	}
	return src.StringOrDefault(key, def)
}

func runHost(c *cli.Context) error {
	src, err := buildHub(c)
	if err != nil {
		return err
	}

	if debug := setting(src, "debug", config.KeyDebug, ""); debug != "" {
		log.SetDebugMask(log.ParseCategories(debug))
	}

	h, err := ceptr.NewHost()
	if err != nil {
		return err
	}
	h.SetClockPeriod(src.DurationOrDefault(config.KeyClockPeriod, ceptr.DefaultClockPeriod))
	if err := h.Activate(h.Clock()); err != nil {
		return err
	}

	dataDir := setting(src, "data", config.KeyData, config.DataDir())
	store, err := ceptr.OpenPackageStore(path.Join(dataDir, "packages.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := h.Sem.NewContext()
	lineSym, err := h.Sem.DefineSymbol(ctx, h.Sys.StrCString, "LINE")
	if err != nil {
		return err
	}

	port := src.IntOrDefault("baseport", src.IntOrDefault(config.KeyBasePort, 2015))
	lst, err := streamio.NewListener(port, streamio.DelimLF, func(st *streamio.Stream, arg interface{}) {
		h.Root().OwnStream(st)
		go pump(h, st, lineSym)
	}, nil)
	if err != nil {
		return err
	}
	defer lst.Close()

	h.Start()
	log.Info("ceptrd up on port", port, "host", h.ID)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")
	h.Shutdown()
	return nil
}

// pump forwards each framed unit as an external signal to the root
// receptor. With no expectations installed the deliveries are silent
// no-matches; expressing a protocol role on the root aspect turns them
// into work.
func pump(h *ceptr.Host, st *streamio.Stream, carrier sem.SemanticID) {
	self := h.Root().Addr()
	for {
		unit, err := st.Next()
		if err != nil {
			return
		}
		if _, err := h.SendExternalString(self, self, "LINES", carrier, string(unit)); err != nil {
			log.Error("dropping unit:", err)
		}
	}
}

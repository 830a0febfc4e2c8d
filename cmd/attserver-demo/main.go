// Command attserver-demo hosts a small, fixed attribute table over a
// toy newline-delimited hex-PDU TCP transport -- not real L2CAP, just
// enough to drive att.Server.Dispatch from a terminal for manual
// testing. The CLI shape (urfave/cli app with Commands/Flags) and the
// colorized console logging (logrus output wrapped in
// mattn/go-colorable, with mattn/go-isatty gating color, plus a logxi
// logger for demo events) follow the
// conventions the rest of this stack's dependency graph pulls in.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"github.com/mgutz/logxi/v1"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/go-ble/attserver"
	"github.com/go-ble/attserver/internal/diag"
)

func main() {
	app := cli.NewApp()
	app.Name = "attserver-demo"
	app.Usage = "host a toy attribute table over a plain TCP listener"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "listen, l", Value: "127.0.0.1:2342", Usage: "address to listen on"},
		cli.IntFlag{Name: "mtu", Value: 185, Usage: "local ATT MTU to advertise"},
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "start the demo server",
			Action: serveCommand,
		},
		{
			Name:   "dump",
			Usage:  "print the demo attribute table as JSON and exit",
			Action: dumpCommand,
		},
	}
	app.Action = serveCommand

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, ansi.Color(err.Error(), "red"))
		os.Exit(1)
	}
}

func consoleLogger() *logrus.Entry {
	out := colorable.NewColorableStdout()
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		out = colorable.NewNonColorable(os.Stdout)
	}
	logrus.SetOutput(out)
	logrus.SetFormatter(&logrus.TextFormatter{ForceColors: true})
	return logrus.NewEntry(logrus.StandardLogger())
}

var demoLog = log.New("attserver-demo")

func buildDemoTable() *att.Table {
	t := att.NewTable(0, nil)

	t.RegisterUUID16(0x2800, att.FlagRead, nil, nil) // Primary Service: Device Information

	deviceName := []byte("attserver-demo")
	t.RegisterUUID16(0x2803, att.FlagRead, nil, nil) // Characteristic declaration
	t.RegisterUUID16(0x2a00, att.FlagRead|att.FlagWrite,
		func(ctx *att.AccessContext) ([]byte, byte) {
			switch ctx.Op {
			case att.AccessRead:
				return deviceName, 0
			case att.AccessWrite:
				demoLog.Info("device name write", "data", string(ctx.Data))
				deviceName = append([]byte(nil), ctx.Data...)
				return nil, 0
			}
			return nil, 0
		}, nil)

	return t
}

func serveCommand(c *cli.Context) error {
	log := consoleLogger()
	addr := c.GlobalString("listen")
	mtu := uint16(c.GlobalInt("mtu"))

	table := buildDemoTable()
	srv := att.NewServer(table,
		att.WithLocalMTU(mtu),
		att.WithLogger(log),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.WithField("addr", addr).Info("listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go serveConn(srv, conn, log)
	}
}

// serveConn speaks one PDU per line, hex-encoded, in each direction --
// a deliberately trivial stand-in for the L2CAP fixed channel framing
// a real transport would provide.
func serveConn(srv *att.Server, conn net.Conn, log *logrus.Entry) {
	defer conn.Close()
	srv.Connect(conn)
	defer srv.Disconnect(conn)

	r := bufio.NewScanner(conn)
	for r.Scan() {
		pdu, err := hex.DecodeString(r.Text())
		if err != nil {
			log.WithError(err).Warn("malformed line from client")
			continue
		}
		resp := srv.Dispatch(conn, pdu)
		if resp == nil {
			continue
		}
		if _, err := fmt.Fprintf(conn, "%s\n", hex.EncodeToString(resp)); err != nil {
			log.WithError(err).Warn("write to client failed")
			return
		}
	}
}

func dumpCommand(c *cli.Context) error {
	table := buildDemoTable()
	snap := diag.Snapshot{}
	for _, a := range table.All() {
		snap.Attributes = append(snap.Attributes, diag.AttributeSnapshot{
			Handle: a.Handle,
			UUID:   a.UUID.String(),
			Flags:  uint8(a.Flags),
		})
	}
	out, err := diag.Dump(snap)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

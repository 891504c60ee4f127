package main

import (
	"crypto/tls"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/normanjoyner/quic"
	"github.com/normanjoyner/quic/transport"
)

func newServerCommand() *cobra.Command {
	var (
		configPath string
		listenAddr string
		certFile   string
		keyFile    string
		logLevel   int
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Accept QUIC connections and echo received stream data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadFileConfig(configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("listen") {
				listenAddr = file.Listen
			}
			if !cmd.Flags().Changed("v") {
				logLevel = file.LogLevel
			}
			if certFile == "" {
				certFile = file.CertFile
			}
			if keyFile == "" {
				keyFile = file.KeyFile
			}

			config := newConfig()
			if certFile != "" && keyFile != "" {
				cert, err := tls.LoadX509KeyPair(certFile, keyFile)
				if err != nil {
					return err
				}
				config.TLS.Certificates = []tls.Certificate{cert}
			}

			server := quic.NewServer(config)
			server.SetHandler(&serverHandler{})
			server.SetLogger(logLevel, os.Stdout)
			if err := server.ListenAndServe(listenAddr); err != nil {
				return err
			}
			logrus.Infof("quince server listening on %s", listenAddr)
			select {}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&listenAddr, "listen", "0.0.0.0:4433", "listen on the given IP:port")
	cmd.Flags().StringVar(&certFile, "cert", "", "TLS certificate file")
	cmd.Flags().StringVar(&keyFile, "key", "", "TLS key file")
	cmd.Flags().IntVar(&logLevel, "v", 2, "log verbose: 0=off 1=error 2=info 3=debug 4=trace")
	return cmd
}

type serverHandler struct{}

func (s *serverHandler) Serve(c quic.Conn, events []transport.Event) {
	for _, e := range events {
		switch e.Type {
		case transport.EventStream:
			st := c.Stream(e.StreamID)
			if st == nil {
				continue
			}
			buf := make([]byte, 4096)
			n, _ := st.Read(buf)
			if n > 0 {
				logrus.WithField("addr", c.RemoteAddr()).Infof("stream %d: %d bytes", e.StreamID, n)
				_, _ = st.Write(buf[:n])
				_ = st.Close()
			}
		case quic.EventConnClose:
			logrus.WithField("addr", c.RemoteAddr()).Debug("connection closed")
		}
	}
}

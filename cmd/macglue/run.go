package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/qxcheng/macglue/pkg/buffer"
	"github.com/qxcheng/macglue/pkg/log"
	tcpip "github.com/qxcheng/macglue/protocol"
	"github.com/qxcheng/macglue/protocol/header"
	"github.com/qxcheng/macglue/protocol/link/glue"
	"github.com/qxcheng/macglue/protocol/stack"
)

var (
	runInterval time.Duration
	runCount    int
	runSize     int
	runStats    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bring the interfaces up and exchange test traffic",
	Long: `Bring every configured interface up, then send UDP datagrams through
each NIC at the given interval. Loopback interfaces receive their own
traffic. Counters are served on metrics.listen when configured.

Examples:
  macglue run                          # built-in loopback, runs until Ctrl+C
  macglue run -n 100 -i 10ms --stats   # send 100 datagrams, print counters
  macglue run -c macglue.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runInterval <= 0 {
			return fmt.Errorf("interval must be positive: %s", runInterval)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := log.New(cfg.Log)
		if err != nil {
			return err
		}
		nc, err := cfg.NetworkConfig(newDriver)
		if err != nil {
			return err
		}
		opts := cfg.Options()
		opts.Logger = logger
		g, gerr := glue.New(nc, opts)
		if gerr != nil {
			return fmt.Errorf("glue: %w", gerr)
		}

		names := make([]string, len(cfg.Interfaces))
		for i, ifc := range cfg.Interfaces {
			names[i] = ifc.Name
		}
		s := stack.New(g, stack.Options{Names: names, Logger: logger})
		defer s.Close()

		var received atomic.Uint64
		for _, nic := range s.NICs() {
			l := logger.WithField("nic", nic.Name())
			nic.Attach(stack.DispatcherFunc(func(_ stack.LinkEndpoint, dst, src tcpip.LinkAddress, proto tcpip.NetworkProtocolNumber, pkt *buffer.Packet) {
				received.Add(1)
				if l.IsDebugEnabled() {
					l.Debugf("received %d bytes, ethertype %#04x from %s", pkt.Views().Size(), uint32(proto), src)
				}
				buffer.Release(pkt)
			}))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		eg, ctx := errgroup.WithContext(ctx)

		eg.Go(func() error {
			return g.Run(ctx)
		})
		if cfg.Metrics.Listen != "" {
			srv := metricsServer(g, cfg.Metrics.Listen, cfg.Metrics.Path)
			eg.Go(func() error {
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				shut, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				return srv.Shutdown(shut)
			})
		}
		eg.Go(func() error {
			err := sendTraffic(ctx, g, s, logger)
			if err == nil {
				// 发完后再等一个周期让最后的包回来
				time.Sleep(2 * cfg.TickInterval)
				stop()
			}
			return err
		})

		err = eg.Wait()
		g.Close()
		logger.Infof("received %d datagram(s)", received.Load())
		if runStats {
			printCounters(cmd, g.Counters())
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	runCmd.Flags().DurationVarP(&runInterval, "interval", "i", 100*time.Millisecond, "time between datagrams")
	runCmd.Flags().IntVarP(&runCount, "count", "n", 0, "datagrams per NIC, 0 sends until interrupted")
	runCmd.Flags().IntVar(&runSize, "size", 64, "UDP payload size")
	runCmd.Flags().BoolVar(&runStats, "stats", false, "print glue counters on exit")
}

func metricsServer(g *glue.Glue, listen, path string) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(glue.NewCollector(g, "macglue"))
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// sendTraffic waits for the glue to run, then writes runCount datagrams to
// every NIC that came up.
func sendTraffic(ctx context.Context, g *glue.Glue, s *stack.Stack, logger log.Logger) error {
	t := time.NewTicker(runInterval)
	defer t.Stop()

	for g.Status() != glue.ResultOK {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	payload, err := udpDatagram(make([]byte, runSize))
	if err != nil {
		return err
	}
	for sent := 0; runCount == 0 || sent < runCount; sent++ {
		for _, nic := range s.NICs() {
			if nic.MTU() == 0 {
				continue
			}
			pkt, err := g.Buffers().Allocate(int(nic.MaxHeaderLength()))
			if err != nil {
				logger.WithError(err).Warnf("no buffer for %s", nic.Name())
				continue
			}
			pkt.Append(payload)
			if terr := nic.WritePacket(header.EthernetBroadcastAddress, header.IPv4ProtocolNumber, pkt); terr != nil {
				logger.WithField("nic", nic.Name()).Warnf("write: %v", terr)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// udpDatagram serializes an IPv4/UDP datagram carrying payload.
func udpDatagram(payload []byte) ([]byte, error) {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 1),
		DstIP:    net.IPv4(192, 168, 1, 255),
	}
	udp := &layers.UDP{SrcPort: 9000, DstPort: 9000}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func printCounters(cmd *cobra.Command, counters map[string]uint64) {
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	w := cmd.OutOrStdout()
	for _, name := range names {
		fmt.Fprintf(w, "%-32s %d\n", name, counters[name])
	}
}

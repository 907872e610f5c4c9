package graphite

import (
	"bufio"
	"context"
	"errors"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gravito-framework/hal-go/internal/testutil"
	"github.com/gravito-framework/hal-go/pkg/types"
	"github.com/marpaia/graphite-golang"
)

type fakeSender struct {
	batches      [][]graphite.Metric
	err          error
	disconnected bool
}

func (f *fakeSender) SendMetrics(metrics []graphite.Metric) error {
	f.batches = append(f.batches, metrics)
	return f.err
}

func (f *fakeSender) Disconnect() error {
	f.disconnected = true
	return nil
}

func fixedClock() time.Time {
	return time.Unix(1568455200, 0)
}

func TestSeriesName(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		metric string
		tags   []string
		want   string
	}{
		{"bare", "", "hal.parsec.credits", nil, "hal.parsec.credits"},
		{"prefix", "home.", "hal.parsec.credits", nil, "home.hal.parsec.credits"},
		{"key value tags", "", "hal.elmo.areas", []string{"name:Garage", "status:armed"}, "hal.elmo.areas;name=Garage;status=armed"},
		{"bare label", "", "hal.watchdog.detected_hosts", []string{"phones"}, "hal.watchdog.detected_hosts;phones=true"},
		{"reserved characters", "", "m", []string{"name:Living Room"}, "m;name=Living_Room"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeriesName(tt.prefix, tt.metric, tt.tags); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSend(t *testing.T) {
	sender := &fakeSender{}
	e := New(Config{Host: "carbon", Tags: []string{"env:home"}}, WithDialer(func(host string, port int) (Sender, error) {
		if host != "carbon" || port != 2003 {
			t.Errorf("Unexpected address %s:%d", host, port)
		}
		return sender, nil
	}))
	e.now = fixedClock

	results := types.Results{}
	results.Set("b", 1.5)
	results.Add("a", 2, "state:off")
	e.Send(context.Background(), results)

	want := []graphite.Metric{
		{Name: "a;env=home;state=off", Value: "2", Timestamp: 1568455200},
		{Name: "b;env=home", Value: "1.5", Timestamp: 1568455200},
	}
	if len(sender.batches) != 1 || !reflect.DeepEqual(sender.batches[0], want) {
		t.Errorf("Expected one batch %v, got %v", want, sender.batches)
	}
	if !sender.disconnected {
		t.Error("Expected connection to be closed")
	}
}

func TestSendFailures(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		dialer Dialer
		reason string
	}{
		{"missing host", Config{}, nil, "host is not configured"},
		{"dial", Config{Host: "carbon"}, func(string, int) (Sender, error) { return nil, errors.New("refused") }, "unable to connect"},
		{"send", Config{Host: "carbon"}, func(string, int) (Sender, error) { return &fakeSender{err: errors.New("broken pipe")}, nil }, "unable to send metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := testutil.NewLogger()
			opts := []Option{WithLogger(logger)}
			if tt.dialer != nil {
				opts = append(opts, WithDialer(tt.dialer))
			}
			e := New(tt.cfg, opts...)
			e.Send(context.Background(), types.Results{"m": {{Value: 1}}})

			errs := logs.Lines("ERROR")
			if len(errs) != 1 || !strings.Contains(errs[0], tt.reason) {
				t.Errorf("Expected %q, got:\n%s", tt.reason, logs.String())
			}
		})
	}
}

func TestSendOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	lines := make(chan string, 2)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	e := New(Config{Host: "127.0.0.1", Port: addr.Port, Prefix: "hal"})
	e.now = fixedClock
	e.Send(context.Background(), types.Results{"parsec.credits": {{Value: 1200}}})

	select {
	case line := <-lines:
		if line != "hal.parsec.credits 1200 1568455200" {
			t.Errorf("Unexpected line %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for carbon line")
	}
}

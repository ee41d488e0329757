package syslogrecv

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseFramePRIDecomposesFacilityAndSeverity(t *testing.T) {
	frame := ParseFrame([]byte("<134>Jan 2 15:04:05 router1 system, interface ether1 link down"), time.Now())
	if frame.Facility != 16 || frame.Severity != 6 {
		t.Fatalf("Facility=%d Severity=%d, want 16/6 (134 = 16*8+6)", frame.Facility, frame.Severity)
	}
}

func TestParseFrameSplitsKnownTopic(t *testing.T) {
	frame := ParseFrame([]byte("<30>Jan 2 15:04:05 router1 interface, ether1 link down"), time.Now())
	if frame.Topic != "interface" {
		t.Fatalf("Topic = %q, want interface", frame.Topic)
	}
}

func TestParseFrameUnknownTopicFallback(t *testing.T) {
	frame := ParseFrame([]byte("<30>Jan 2 15:04:05 router1 something unrelated happened here"), time.Now())
	if frame.Topic != "unknown" {
		t.Fatalf("Topic = %q, want unknown", frame.Topic)
	}
}

func TestParseFrameNoPRIFallsBackToRawSplit(t *testing.T) {
	frame := ParseFrame([]byte("system, boot complete"), time.Now())
	if frame.Topic != "system" {
		t.Fatalf("Topic = %q, want system", frame.Topic)
	}
}

func TestParseFrameRFC5424VersionDigitDetected(t *testing.T) {
	frame := ParseFrame([]byte("<165>1 2026-07-30T12:00:00Z router1 app - - - system, config changed"), time.Now())
	if frame.Facility != 20 || frame.Severity != 5 {
		t.Fatalf("Facility=%d Severity=%d, want 20/5 (165 = 20*8+5)", frame.Facility, frame.Severity)
	}
}

func TestListenerRunDecodesDatagram(t *testing.T) {
	listener, err := New(Config{Addr: "127.0.0.1:0"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = listener.Run(ctx)
		close(done)
	}()

	conn, err := net.DialUDP("udp", nil, listener.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP() error = %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("<134>Jan 2 15:04:05 router1 system, boot complete")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case frame := <-listener.Frames():
		if frame.Topic != "system" {
			t.Fatalf("Topic = %q, want system", frame.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}

	cancel()
	<-done
}

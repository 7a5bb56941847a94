package modem_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/lorae5/modem"
)

// newMockDevice opens a Device on top of a MockTransport. The builder hook
// may adjust timeouts or the buffer size before the config is built.
func newMockDevice(t *testing.T, ctrl *gomock.Controller, configure func(*modem.ConfigBuilder)) (*modem.Device, *modem.MockTransport) {
	t.Helper()

	mockTransport := modem.NewMockTransport(ctrl)
	mockDialer := modem.NewMockDialer(ctrl)
	mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil)

	builder := modem.NewConfigBuilder().WithDialer(mockDialer)
	if configure != nil {
		configure(builder)
	}
	config, err := builder.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	d, err := modem.Open(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error from Open(): %v", err)
	}
	return d, mockTransport
}

// idleReads makes every further read return nothing after a short pause,
// like a serial port whose read timeout expired.
func idleReads(mockTransport *modem.MockTransport) {
	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		time.Sleep(time.Millisecond)
		return 0, nil
	}).AnyTimes()
}

func TestOpen(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		if d == nil {
			t.Fatal("Open() should return valid device on success")
		}

		mockTransport.EXPECT().Close().Return(nil)
		if err := d.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
	})

	t.Run("Dialer error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		dialError := errors.New("connection failed")
		mockDialer := modem.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, dialError)

		config, err := modem.NewConfigBuilder().WithDialer(mockDialer).Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		d, err := modem.Open(context.Background(), config)
		if !errors.Is(err, dialError) {
			t.Errorf("expected dial error, got: %v", err)
		}
		if d != nil {
			t.Error("Open() should return nil device when dialer fails")
		}
	})

	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		d, err := modem.Open(context.Background(), modem.Config{})
		if !errors.Is(err, modem.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer from Open(), got: %v", err)
		}
		if d != nil {
			t.Error("Open() should return nil device when no dialer provided")
		}
	})

	t.Run("ErrNotInitialized on nil transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, nil)

		_, err := modem.Open(context.Background(), modem.Config{Dialer: mockDialer})
		if !errors.Is(err, modem.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized from Open(), got: %v", err)
		}
	})
}

func TestDeviceClose(t *testing.T) {
	t.Run("Returns transport error on close failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		closeError := errors.New("transport close failed")
		mockTransport.EXPECT().Close().Return(closeError)

		if err := d.Close(); err != closeError {
			t.Errorf("expected transport error, got: %v", err)
		}
	})

	t.Run("ErrAlreadyClosed on double close", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		mockTransport.EXPECT().Close().Return(nil)

		if err := d.Close(); err != nil {
			t.Errorf("first close should succeed, got error: %v", err)
		}
		if err := d.Close(); err != modem.ErrAlreadyClosed {
			t.Errorf("expected ErrAlreadyClosed on second close, got: %v", err)
		}
	})

	t.Run("Operations fail after close", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		mockTransport.EXPECT().Close().Return(nil)
		d.Close()

		if _, err := d.Version(); !errors.Is(err, modem.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed, got: %v", err)
		}
	})
}

func TestWriteCommand(t *testing.T) {
	t.Run("Command and terminator are separate writes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		gomock.InOrder(NewMockSequence(mockTransport).AT().Build()...)

		ok, err := d.IsOK()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected module to be reported as OK")
		}
	})

	t.Run("Short write of the command", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		mockTransport.EXPECT().Write([]byte("AT+VER")).Return(3, nil)

		_, err := d.Version()
		var shortWrite *modem.ShortWriteError
		if !errors.As(err, &shortWrite) {
			t.Fatalf("expected ShortWriteError, got: %v", err)
		}
		if shortWrite.Written != 3 || shortWrite.Expected != 6 {
			t.Errorf("unexpected counts: %+v", shortWrite)
		}
		if !errors.Is(err, modem.ErrShortWrite) {
			t.Errorf("expected ErrShortWrite kind, got: %v", err)
		}
	})

	t.Run("Short write of the terminator", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		gomock.InOrder(
			mockTransport.EXPECT().Write([]byte("AT+VER")).Return(6, nil),
			mockTransport.EXPECT().Write([]byte("\n")).Return(0, nil),
		)

		if _, err := d.Version(); !errors.Is(err, modem.ErrShortWrite) {
			t.Errorf("expected ErrShortWrite, got: %v", err)
		}
	})

	t.Run("Write error is a transport error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		writeError := errors.New("device unplugged")
		mockTransport.EXPECT().Write(gomock.Any()).Return(0, writeError)

		_, err := d.Version()
		if !errors.Is(err, modem.ErrTransport) || !errors.Is(err, writeError) {
			t.Errorf("expected wrapped transport error, got: %v", err)
		}
	})
}

func TestReadUntilPattern(t *testing.T) {
	t.Run("Accumulates across reads", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		gomock.InOrder(
			mockTransport.EXPECT().Write([]byte("AT+VER")).Return(6, nil),
			mockTransport.EXPECT().Write([]byte("\n")).Return(1, nil),
			mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				return copy(p, "+VER: 4."), nil
			}),
			mockTransport.EXPECT().Read(gomock.Any()).Return(0, nil),
			mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				return copy(p, "0.11\r\n"), nil
			}),
		)

		version, err := d.Version()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if version != "4.0.11" {
			t.Errorf("expected version 4.0.11, got %q", version)
		}
	})

	t.Run("Partial response after timeout keeps accumulated text", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, func(b *modem.ConfigBuilder) {
			b.WithJoinTimeout(30 * time.Millisecond)
		})
		partial := "+JOIN: Start\r\n+JOIN: NORMAL\r\n"
		gomock.InOrder(
			mockTransport.EXPECT().Write([]byte("AT+JOIN")).Return(7, nil),
			mockTransport.EXPECT().Write([]byte("\n")).Return(1, nil),
			mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				return copy(p, partial), nil
			}),
		)
		idleReads(mockTransport)

		start := time.Now()
		_, err := d.Join()
		if !errors.Is(err, modem.ErrPartialResponse) {
			t.Fatalf("expected ErrPartialResponse, got: %v", err)
		}
		var respErr *modem.ResponseError
		if !errors.As(err, &respErr) {
			t.Fatalf("expected ResponseError, got: %T", err)
		}
		if respErr.Response != partial {
			t.Errorf("expected partial response %q, got %q", partial, respErr.Response)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("read took %v, longer than its timeout allows", elapsed)
		}
	})

	t.Run("Empty partial response", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, func(b *modem.ConfigBuilder) {
			b.WithLivenessTimeout(5 * time.Millisecond)
		})
		gomock.InOrder(
			mockTransport.EXPECT().Write([]byte("AT")).Return(2, nil),
			mockTransport.EXPECT().Write([]byte("\n")).Return(1, nil),
		)
		idleReads(mockTransport)

		_, err := d.IsOK()
		var respErr *modem.ResponseError
		if !errors.As(err, &respErr) || respErr.Kind != modem.ErrPartialResponse {
			t.Fatalf("expected partial response error, got: %v", err)
		}
		if respErr.Response != "" {
			t.Errorf("expected empty partial response, got %q", respErr.Response)
		}
	})

	t.Run("Buffer overflow is reported", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, func(b *modem.ConfigBuilder) {
			b.WithBufferSize(8)
		})
		gomock.InOrder(
			mockTransport.EXPECT().Write([]byte("AT+VER")).Return(6, nil),
			mockTransport.EXPECT().Write([]byte("\n")).Return(1, nil),
			mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				if len(p) != 8 {
					t.Errorf("expected read into the whole 8 byte buffer, got %d", len(p))
				}
				return copy(p, "+VER: 4.0.11\r\n"), nil
			}),
		)

		_, err := d.Version()
		var respErr *modem.ResponseError
		if !errors.As(err, &respErr) || respErr.Kind != modem.ErrBufferFull {
			t.Fatalf("expected ErrBufferFull, got: %v", err)
		}
		if respErr.Response != "+VER: 4." {
			t.Errorf("unexpected accumulated text %q", respErr.Response)
		}
	})

	t.Run("Read error is a transport error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		gomock.InOrder(
			mockTransport.EXPECT().Write([]byte("AT+VER")).Return(6, nil),
			mockTransport.EXPECT().Write([]byte("\n")).Return(1, nil),
			mockTransport.EXPECT().Read(gomock.Any()).Return(0, io.EOF),
		)

		_, err := d.Version()
		if !errors.Is(err, modem.ErrTransport) || !errors.Is(err, io.EOF) {
			t.Errorf("expected wrapped EOF, got: %v", err)
		}
	})

	t.Run("Invalid UTF-8 is an encoding error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		gomock.InOrder(
			mockTransport.EXPECT().Write([]byte("AT+VER")).Return(6, nil),
			mockTransport.EXPECT().Write([]byte("\n")).Return(1, nil),
			mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				return copy(p, "+VER: \xff\xfe\r\n"), nil
			}),
		)

		if _, err := d.Version(); !errors.Is(err, modem.ErrEncoding) {
			t.Errorf("expected ErrEncoding, got: %v", err)
		}
	})
}

func TestIsOK(t *testing.T) {
	t.Run("Unexpected answer is not an error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport := newMockDevice(t, ctrl, nil)
		gomock.InOrder(NewMockSequence(mockTransport).Exchange("AT", "+AT: ERROR(-1)\r\n").Build()...)

		ok, err := d.IsOK()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected module to be reported as not OK")
		}
	})
}

func TestResetInputBeforeCommand(t *testing.T) {
	tt := &resettingTransport{TestTransport: modem.NewTestTransport()}
	tt.Reply("AT", "+AT: OK\r\n")

	d, err := modem.Open(context.Background(), modem.Config{Dialer: dialerFunc(func(ctx context.Context) (modem.Transport, error) {
		return tt, nil
	})})
	if err != nil {
		t.Fatalf("unexpected error from Open(): %v", err)
	}

	if _, err := d.IsOK(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tt.resets != 1 {
		t.Errorf("expected input to be reset once, got %d", tt.resets)
	}
}

type resettingTransport struct {
	*modem.TestTransport
	resets int
}

func (r *resettingTransport) ResetInputBuffer() error {
	r.resets++
	return nil
}

type dialerFunc func(ctx context.Context) (modem.Transport, error)

func (f dialerFunc) Dial(ctx context.Context) (modem.Transport, error) {
	return f(ctx)
}

func TestTestTransportRecordsWrites(t *testing.T) {
	tt := modem.NewTestTransport()
	tt.Write([]byte("AT"))
	tt.Write([]byte("\n"))
	if got := strings.Join(tt.Writes(), ","); got != "AT" {
		t.Errorf("unexpected writes %q", got)
	}
}

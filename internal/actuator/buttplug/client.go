// Package buttplug implements actuator.Channel as a Buttplug protocol v3
// client talking JSON over a websocket to an Intiface compatible server.
package buttplug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/verte-zerg/recite/internal/actuator"
)

// DefaultURL is the default Intiface Central websocket address.
const DefaultURL = "ws://127.0.0.1:12345"

// linearMoveMs is the travel time of a linear actuator command.
const linearMoveMs = 500

// ErrClosed is returned once the connection has ended.
var ErrClosed = errors.New("buttplug: connection closed")

// ServerError is an Error message returned by the server.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("buttplug: server error %d: %s", e.Code, e.Message)
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithClientName sets the name sent in the handshake.
func WithClientName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

type reply struct {
	typ string
	raw json.RawMessage
}

type device struct {
	info    deviceInfo
	battery *float64
}

// Client is a connected Buttplug client. It implements actuator.Channel.
type Client struct {
	conn   *websocket.Conn
	name   string
	logger *slog.Logger
	nextID atomic.Uint32

	mu       sync.Mutex
	pending  map[uint32]chan reply
	devices  map[int]*device
	pulse    *time.Timer
	server   serverInfo
	closeErr error

	done   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects to url, performs the handshake and fetches the device list.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	if url == "" {
		url = DefaultURL
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial buttplug server: %w", err)
	}
	// Device lists can be large.
	conn.SetReadLimit(1 << 20)

	loopCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		name:    "recite",
		logger:  slog.New(slog.DiscardHandler),
		pending: map[uint32]chan reply{},
		devices: map[int]*device{},
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	for _, o := range opts {
		o(c)
	}
	c.wg.Add(1)
	go c.readLoop(loopCtx)

	if err := c.handshake(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.RefreshDevices(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	if c.server.MaxPingTime > 0 {
		c.wg.Add(1)
		go c.pingLoop(loopCtx, time.Duration(c.server.MaxPingTime)*time.Millisecond/2)
	}
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	id := c.id()
	r, err := c.roundTrip(ctx, id, "RequestServerInfo", requestServerInfo{
		ID:             id,
		ClientName:     c.name,
		MessageVersion: messageVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to request server info: %w", err)
	}
	if r.typ != "ServerInfo" {
		return fmt.Errorf("failed to request server info: unexpected %s", r.typ)
	}
	var info serverInfo
	if err := json.Unmarshal(r.raw, &info); err != nil {
		return fmt.Errorf("failed to decode server info: %w", err)
	}
	c.mu.Lock()
	c.server = info
	c.mu.Unlock()
	c.logger.Info("buttplug connected", "server", info.ServerName, "max_ping_ms", info.MaxPingTime)
	return nil
}

// ServerName returns the name reported by the server.
func (c *Client) ServerName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server.ServerName
}

// RefreshDevices replaces the device table with the server's list.
func (c *Client) RefreshDevices(ctx context.Context) error {
	id := c.id()
	r, err := c.roundTrip(ctx, id, "RequestDeviceList", idOnly{ID: id})
	if err != nil {
		return fmt.Errorf("failed to request device list: %w", err)
	}
	var list deviceList
	if err := json.Unmarshal(r.raw, &list); err != nil {
		return fmt.Errorf("failed to decode device list: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = map[int]*device{}
	for _, info := range list.Devices {
		c.devices[info.DeviceIndex] = &device{info: info}
	}
	return nil
}

// StartScanning asks the server to look for devices. Found devices arrive as
// DeviceAdded events.
func (c *Client) StartScanning(ctx context.Context) error {
	return c.ok(ctx, "StartScanning")
}

// StopScanning ends a scan.
func (c *Client) StopScanning(ctx context.Context) error {
	return c.ok(ctx, "StopScanning")
}

// Devices implements actuator.Channel.
func (c *Client) Devices() []actuator.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]actuator.Device, 0, len(c.devices))
	for _, d := range c.devices {
		dev := actuator.Device{
			Index:    d.info.DeviceIndex,
			Name:     d.info.DeviceName,
			Linear:   len(d.info.DeviceMessages.LinearCmd),
			Rotators: len(d.info.DeviceMessages.RotateCmd),
		}
		for _, a := range d.info.DeviceMessages.ScalarCmd {
			if a.ActuatorType == "Vibrate" {
				dev.Vibrators++
			}
		}
		if d.battery != nil {
			b := *d.battery
			dev.Battery = &b
		}
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ReadBatteries reads the battery sensor of every device that has one and
// caches the result for Devices.
func (c *Client) ReadBatteries(ctx context.Context) error {
	type target struct {
		device, sensor int
		full           int
	}
	var targets []target
	c.mu.Lock()
	for _, d := range c.devices {
		for i, s := range d.info.DeviceMessages.SensorReadCmd {
			if s.SensorType != "Battery" {
				continue
			}
			full := 100
			if len(s.SensorRange) > 0 && len(s.SensorRange[0]) == 2 && s.SensorRange[0][1] > 0 {
				full = s.SensorRange[0][1]
			}
			targets = append(targets, target{device: d.info.DeviceIndex, sensor: i, full: full})
			break
		}
	}
	c.mu.Unlock()

	var errs []error
	for _, t := range targets {
		id := c.id()
		r, err := c.roundTrip(ctx, id, "SensorReadCmd", sensorReadCmd{
			ID:          id,
			DeviceIndex: t.device,
			SensorIndex: t.sensor,
			SensorType:  "Battery",
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to read battery of device %d: %w", t.device, err))
			continue
		}
		var reading sensorReading
		if err := json.Unmarshal(r.raw, &reading); err != nil || len(reading.Data) == 0 {
			errs = append(errs, fmt.Errorf("failed to decode battery of device %d", t.device))
			continue
		}
		level := float64(reading.Data[0]) / float64(t.full)
		c.mu.Lock()
		if d, ok := c.devices[t.device]; ok {
			d.battery = &level
		}
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Activate implements actuator.Channel. Every scalar, rotating and linear
// actuator of every device is driven at intensity.
func (c *Client) Activate(ctx context.Context, intensity float64, duration time.Duration) error {
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 1 {
		intensity = 1
	}
	c.mu.Lock()
	infos := make([]deviceInfo, 0, len(c.devices))
	for _, d := range c.devices {
		infos = append(infos, d.info)
	}
	if c.pulse != nil {
		c.pulse.Stop()
		c.pulse = nil
	}
	c.mu.Unlock()

	var errs []error
	for _, info := range infos {
		if err := c.activateDevice(ctx, info, intensity); err != nil {
			errs = append(errs, err)
		}
	}
	if duration > 0 {
		c.mu.Lock()
		c.pulse = time.AfterFunc(duration, func() {
			sctx, cancel := context.WithTimeout(context.Background(), actuator.DefaultTimeout)
			defer cancel()
			if err := c.Stop(sctx); err != nil {
				c.logger.Warn("buttplug pulse stop failed", "err", err)
			}
		})
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (c *Client) activateDevice(ctx context.Context, info deviceInfo, intensity float64) error {
	msgs := info.DeviceMessages
	if len(msgs.ScalarCmd) > 0 {
		id := c.id()
		cmd := scalarCmd{ID: id, DeviceIndex: info.DeviceIndex}
		for i, a := range msgs.ScalarCmd {
			cmd.Scalars = append(cmd.Scalars, scalar{Index: i, Scalar: intensity, ActuatorType: a.ActuatorType})
		}
		if _, err := c.roundTrip(ctx, id, "ScalarCmd", cmd); err != nil {
			return fmt.Errorf("failed to send scalar command to %s: %w", info.DeviceName, err)
		}
	}
	if len(msgs.RotateCmd) > 0 {
		id := c.id()
		cmd := rotateCmd{ID: id, DeviceIndex: info.DeviceIndex}
		for i := range msgs.RotateCmd {
			cmd.Rotations = append(cmd.Rotations, rotation{Index: i, Speed: intensity, Clockwise: true})
		}
		if _, err := c.roundTrip(ctx, id, "RotateCmd", cmd); err != nil {
			return fmt.Errorf("failed to send rotate command to %s: %w", info.DeviceName, err)
		}
	}
	if len(msgs.LinearCmd) > 0 {
		id := c.id()
		cmd := linearCmd{ID: id, DeviceIndex: info.DeviceIndex}
		for i := range msgs.LinearCmd {
			cmd.Vectors = append(cmd.Vectors, vector{Index: i, Duration: linearMoveMs, Position: intensity})
		}
		if _, err := c.roundTrip(ctx, id, "LinearCmd", cmd); err != nil {
			return fmt.Errorf("failed to send linear command to %s: %w", info.DeviceName, err)
		}
	}
	return nil
}

// Stop implements actuator.Channel.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.pulse != nil {
		c.pulse.Stop()
		c.pulse = nil
	}
	c.mu.Unlock()
	if err := c.ok(ctx, "StopAllDevices"); err != nil {
		return fmt.Errorf("failed to stop devices: %w", err)
	}
	return nil
}

// Close ends the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.pulse != nil {
		c.pulse.Stop()
		c.pulse = nil
	}
	c.mu.Unlock()
	_ = c.conn.Close(websocket.StatusNormalClosure, "client closed")
	c.cancel()
	c.wg.Wait()
	return nil
}

// ok sends an Id-only message and waits for Ok.
func (c *Client) ok(ctx context.Context, typ string) error {
	id := c.id()
	r, err := c.roundTrip(ctx, id, typ, idOnly{ID: id})
	if err != nil {
		return err
	}
	if r.typ != "Ok" {
		return fmt.Errorf("buttplug: unexpected %s reply to %s", r.typ, typ)
	}
	return nil
}

func (c *Client) id() uint32 {
	// Id 0 is reserved for server events.
	return c.nextID.Add(1)
}

func (c *Client) roundTrip(ctx context.Context, id uint32, typ string, msg any) (reply, error) {
	data, err := encode(typ, msg)
	if err != nil {
		return reply{}, fmt.Errorf("failed to encode %s: %w", typ, err)
	}
	ch := make(chan reply, 1)
	c.mu.Lock()
	if c.closeErr != nil {
		err := c.closeErr
		c.mu.Unlock()
		return reply{}, err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return reply{}, fmt.Errorf("failed to send %s: %w", typ, err)
	}
	select {
	case r := <-ch:
		if r.typ == "Error" {
			var e errorMsg
			if err := json.Unmarshal(r.raw, &e); err != nil {
				return reply{}, fmt.Errorf("failed to decode error reply: %w", err)
			}
			return reply{}, &ServerError{Code: e.ErrorCode, Message: e.ErrorMessage}
		}
		return r, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-c.done:
		return reply{}, ErrClosed
	}
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		c.closeErr = ErrClosed
		c.mu.Unlock()
		close(c.done)
	}()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("buttplug read failed", "err", err)
			}
			return
		}
		var msgs []envelope
		if err := json.Unmarshal(data, &msgs); err != nil {
			c.logger.Warn("buttplug message malformed", "err", err)
			continue
		}
		for _, env := range msgs {
			for typ, raw := range env {
				c.handle(typ, raw)
			}
		}
	}
}

func (c *Client) handle(typ string, raw json.RawMessage) {
	switch typ {
	case "DeviceAdded":
		var msg deviceAdded
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		c.mu.Lock()
		c.devices[msg.DeviceIndex] = &device{info: msg.deviceInfo}
		c.mu.Unlock()
		c.logger.Info("device added", "name", msg.DeviceName, "index", msg.DeviceIndex)
		return
	case "DeviceRemoved":
		var msg deviceRemoved
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		c.mu.Lock()
		delete(c.devices, msg.DeviceIndex)
		c.mu.Unlock()
		c.logger.Info("device removed", "index", msg.DeviceIndex)
		return
	case "ScanningFinished":
		c.logger.Debug("scanning finished")
		return
	}

	var head idOnly
	if err := json.Unmarshal(raw, &head); err != nil || head.ID == 0 {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[head.ID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- reply{typ: typ, raw: raw}:
	default:
	}
}

func (c *Client) pingLoop(ctx context.Context, every time.Duration) {
	defer c.wg.Done()
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, every)
			err := c.ok(pctx, "Ping")
			cancel()
			if err != nil && ctx.Err() == nil {
				c.logger.Warn("buttplug ping failed", "err", err)
			}
		}
	}
}

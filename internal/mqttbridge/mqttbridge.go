// Package mqttbridge implements the C10 MQTT event bridge: it publishes
// bus frames and device-state changes to MQTT, and relays inbound
// command topics back onto the HDMI network. Grounded on capi/main.go's
// startMQTT/stopMQTT/handleMQTTCommand pair — the same paho.mqtt.golang
// client options (auto-reconnect, retry-on-connect) and the same
// subscribe-on-connect wiring, generalized from CEC-operation topics to
// this bridge's own frame/command grammar.
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/konikvranik/cecbridge/internal/device"
	"github.com/konikvranik/cecbridge/internal/frame"
)

// Network is the subset of *hdmi.Network the bridge drives.
type Network interface {
	Send(ctx context.Context, f frame.Frame)
	Poll(ctx context.Context, addr frame.LogicalAddress) (bool, error)
	Snapshot(addr frame.LogicalAddress) (device.Snapshot, bool)
	AdapterReady() bool
}

// Bridge owns the MQTT client and its subscriptions. Disabled (a no-op)
// unless Start is called with a non-empty broker.
type Bridge struct {
	network Network
	prefix  string
	log     *log.Logger

	mu     sync.Mutex
	client mqtt.Client
}

// New constructs a bridge around network. Call Start to connect.
func New(network Network) *Bridge {
	return &Bridge{
		network: network,
		log:     log.New(os.Stderr, "[mqttbridge] ", log.LstdFlags),
	}
}

// Start connects to broker and subscribes to the command topics under
// prefix. Safe to call again; a prior connection is torn down first.
func (b *Bridge) Start(broker, user, pass, prefix string) {
	b.Stop()
	if prefix == "" {
		prefix = "cecbridge"
	}
	b.prefix = prefix

	host, _ := os.Hostname()
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("cecbridge-%s-%d", host, os.Getpid())).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(10 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			b.log.Printf("connected to %s", broker)
			cmdTopic := prefix + "/command/#"
			token := c.Subscribe(cmdTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
				b.handleCommand(msg.Topic(), msg.Payload())
			})
			if token.Wait() && token.Error() != nil {
				b.log.Printf("subscribe failed: %v", token.Error())
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.log.Printf("connection lost: %v", err)
		})

	if user != "" {
		opts.SetUsername(user)
	}
	if pass != "" {
		opts.SetPassword(pass)
	}

	b.mu.Lock()
	b.client = mqtt.NewClient(opts)
	client := b.client
	b.mu.Unlock()

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		b.log.Printf("initial connection failed (will retry): %v", token.Error())
	}

	b.publishStatus()
}

// Stop disconnects the client, if any. Safe to call when not started.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(1000)
	}
	b.client = nil
}

func (b *Bridge) connected() mqtt.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil || !b.client.IsConnected() {
		return nil
	}
	return b.client
}

// PublishFrame publishes every bus frame to {prefix}/frame. Intended to
// be wired as the network's OnCommand sink (and called for matched
// frames too, by the caller, if full traffic visibility is wanted).
func (b *Bridge) PublishFrame(f frame.Frame) {
	c := b.connected()
	if c == nil {
		return
	}
	c.Publish(b.prefix+"/frame", 0, false, frame.Render(f))
}

// PublishDeviceState publishes addr's current snapshot to
// {prefix}/device/{addr}/state.
func (b *Bridge) PublishDeviceState(addr frame.LogicalAddress) {
	c := b.connected()
	if c == nil {
		return
	}
	snap, ok := b.network.Snapshot(addr)
	if !ok {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	topic := fmt.Sprintf("%s/device/%d/state", b.prefix, addr)
	c.Publish(topic, 0, false, payload)
}

func (b *Bridge) publishStatus() {
	c := b.connected()
	if c == nil {
		return
	}
	payload, _ := json.Marshal(map[string]bool{"adapter_ready": b.network.AdapterReady()})
	c.Publish(b.prefix+"/status", 0, true, payload)
}

// handleCommand dispatches an incoming MQTT message. Topic format:
// {prefix}/command/{action}.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	action := strings.TrimPrefix(topic, b.prefix+"/command/")

	switch action {
	case "inject":
		f, err := frame.Parse(strings.TrimSpace(string(payload)))
		if err != nil {
			b.log.Printf("inject: malformed frame %q: %v", payload, err)
			return
		}
		b.network.Send(context.Background(), f)

	case "poll":
		n, err := strconv.ParseInt(strings.TrimSpace(string(payload)), 16, 8)
		if err != nil || n < 0 || n > 15 {
			b.log.Printf("poll: invalid address %q", payload)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		present, err := b.network.Poll(ctx, frame.LogicalAddress(n))
		if err != nil {
			b.log.Printf("poll %d failed: %v", n, err)
			return
		}
		c := b.connected()
		if c == nil {
			return
		}
		c.Publish(b.prefix+"/command/poll/result", 0, false, strconv.FormatBool(present))

	default:
		b.log.Printf("unknown command topic %q", topic)
	}
}

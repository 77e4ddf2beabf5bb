package main

import (
	"log"
	"net/http"
	"time"

	"github.com/brutella/can"
	"github.com/go-chi/chi"
	serialcfg "github.com/tarm/serial"

	"github.com/redline-embedded/pmucore/bootloader"
	"github.com/redline-embedded/pmucore/canbus"
	"github.com/redline-embedded/pmucore/channel"
	"github.com/redline-embedded/pmucore/comm"
	"github.com/redline-embedded/pmucore/configstore"
	"github.com/redline-embedded/pmucore/core"
	"github.com/redline-embedded/pmucore/datalogger"
	"github.com/redline-embedded/pmucore/flashsim"
	"github.com/redline-embedded/pmucore/generichttp"
	"github.com/redline-embedded/pmucore/logic"
	"github.com/redline-embedded/pmucore/server"
	"github.com/redline-embedded/pmucore/server/middleware/locker"
	"github.com/redline-embedded/pmucore/supervisor"
)

// unit is one fully wired PMU runtime: everything run() needs to start
// the scheduler and, optionally, the debug HTTP mirror.
type unit struct {
	core     *core.Core
	typed    *configstore.TypedStore
	json     *configstore.JSONStore
	link     *comm.RemoteDevice
	canBus   *can.Bus
	debugMux chi.Router
	entries  []channelEntry
	locker   *locker.Locker
}

// build wires every package this repo ships into one runnable unit,
// following the same "open stores, build controller, build mux"
// sequencing multiserver.BuildMux uses, adapted to a single fixed
// device instead of a dynamic node list.
func build(cfg Config) (*unit, error) {
	dev, err := flashsim.OpenFile(cfg.FlashPath, cfg.FlashSize)
	if err != nil {
		return nil, err
	}

	boot := bootloader.New(dev, Layout.bootloaderRegions(), bootloader.NoopVerifier{}, 4096)
	bootResult, err := boot.RunSequence(bootloader.RunOptions{})
	if err != nil {
		bootLog.Printf("could not find a valid application, remaining resident: %v", err)
	}

	typedStore := configstore.NewTypedStore(dev, Layout.TypedA, Layout.TypedSlotSize)
	typedCfg, err := typedStore.Load()
	if err != nil {
		typedCfg = configstore.DefaultTypedConfig()
	}

	jsonStore := configstore.NewJSONStore(dev, Layout.JSONA, Layout.JSONB, Layout.JSONSlotSize)
	entries, err := loadChannelTable(jsonStore)
	if err != nil {
		return nil, err
	}

	reg := channel.NewRegistry()
	for _, id := range []uint16{core.ChanUptimeMs, core.ChanWatchdogResetCount, core.ChanBootReason, core.ChanAppBootCount, core.ChanProtectionStatus} {
		reg.Register(channel.Spec{ID: id, Class: channel.ClassSystemInput, Min: -1 << 30, Max: 1 << 30, Flags: channel.Flags{Enabled: true}})
	}
	for _, e := range entries {
		if outcome := reg.Register(specFromEntry(e)); outcome != channel.OK {
			log.Printf("pmud: skipping channel %d: %v", e.ID, outcome)
		}
	}

	eng := logic.NewEngine()

	var sup *supervisor.Supervisor
	if cfg.Mock {
		sup = supervisor.NewSupervisor(&mockPowerDriver{}, &mockBridgeDriver{})
		reg.BindInput(channel.ClassAnalogInput, mockChannelInputDriver{})
		reg.BindInput(channel.ClassDigitalInput, mockChannelInputDriver{})
	} else {
		log.Fatal("pmud: non-mock hardware drivers are not wired into this host build")
	}

	c := core.New(reg, eng, sup, nowMillis())
	c.Bootloader = boot
	c.SetBootInfo(bootResult)
	c.ApplyTypedConfig(typedCfg)

	logStart := uint32(time.Now().Unix())
	if dl, err := datalogger.NewSession(dev, Layout.Log, Layout.LogSize, typedCfg.PowerOnCount, logStart, typedCfg.UpdateRateHz, inputChannelIDs(entries), datalogger.DefaultPageSize, 256); err == nil {
		c.DataLogger = dl
	} else {
		log.Printf("pmud: data logger unavailable: %v", err)
	}

	u := &unit{core: c, typed: typedStore, json: jsonStore, entries: entries}

	link := comm.NewRemoteDevice(cfg.LinkAddr, cfg.Serial, nil, &serialcfg.Config{Name: cfg.LinkAddr, Baud: cfg.BaudRate})
	u.link = &link

	var writeFrame func([]byte) error
	if cfg.Mock {
		writeFrame = func([]byte) error { return nil }
	} else {
		if err := link.Open(); err != nil {
			return nil, err
		}
		writeFrame = func(b []byte) error {
			_, err := link.Conn.Write(b)
			return err
		}
		go readLinkBytes(&link, c)
	}
	dispatcher := c.BuildDispatcher(writeFrame, inputChannelIDs(entries))
	c.Dispatcher = dispatcher

	if cfg.CANInterface != "" && typedCfg.CAN.Enabled {
		bus, err := can.NewBusForInterfaceWithName(cfg.CANInterface)
		if err != nil {
			canLog.Printf("interface %q unavailable: %v", cfg.CANInterface, err)
		} else {
			u.canBus = bus
			c.CAN = c.BuildCANStream(canbus.BusTransmitter{Bus: bus}, typedCfg.CAN, inputChannelIDs(entries))
			bus.SubscribeFunc(canbus.RXHandler(func(canbus.Frame) {}))
			go bus.ConnectAndPublish()
		}
	}

	u.locker = locker.New()
	u.debugMux = buildDebugMux(c, entries, u.locker)
	return u, nil
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// readLinkBytes is the UART RX interrupt handler spec.md §5 describes,
// run here as an ordinary goroutine instead of silicon: every byte off
// the wire is fed to the dispatcher's parser immediately, never
// blocking on a handler or the next Control tick.
func readLinkBytes(link *comm.RemoteDevice, c *core.Core) {
	buf := make([]byte, 256)
	for {
		n, err := link.Conn.Read(buf)
		for i := 0; i < n; i++ {
			if c.Dispatcher != nil {
				c.Dispatcher.OnByteReceived(buf[i], nowMillis())
			}
		}
		if err != nil {
			linkLog.Printf("read error: %v", err)
			return
		}
	}
}

// buildDebugMux exposes the read-only telemetry mirror server.Server's
// doc comment promises: channel values, output states, and the
// protection rollup, each as its own JSON route under /debug. l gates
// the one mutating route (force-output-0) with 423 Locked while l is
// held; run's staging callback holds it only while it reports a
// staging result, after the image has been written to flash.
func buildDebugMux(c *core.Core, entries []channelEntry, l *locker.Locker) chi.Router {
	mf := &server.Mainframe{}
	channels := &server.Server{URLStem: "/debug/channels", RouteTable: server.RouteTable{}}
	channels.RouteTable["values"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, c.Registry.All())
	}
	outputs := &server.Server{URLStem: "/debug/outputs", RouteTable: server.RouteTable{}}
	outputs.RouteTable["snapshot"] = func(w http.ResponseWriter, r *http.Request) {
		snaps := make([]supervisor.PowerOutput, 0, supervisor.NumPowerOutputs)
		for i := 0; i < supervisor.NumPowerOutputs; i++ {
			if snap, err := c.Supervisor.Snapshot(i); err == nil {
				snaps = append(snaps, snap)
			}
		}
		writeJSON(w, snaps)
	}
	system := &server.Server{URLStem: "/debug/system", RouteTable: server.RouteTable{}}
	system.RouteTable["protection-status"] = generichttp.GetInt(func() (int, error) {
		return int(c.Registry.GetValue(core.ChanProtectionStatus)), nil
	})
	system.RouteTable["force-output-0"] = generichttp.SetBool(func(on bool) error {
		return c.Supervisor.SetState(0, on)
	})
	mf.Add(channels)
	mf.Add(outputs)
	mf.Add(system)

	mux := chi.NewRouter()
	mux.Use(l.Check)
	mf.BindRoutes(mux)
	lockRoutes := generichttp.RouteTable2{}
	locker.Inject(lockRoutes, l)
	lockRoutes.Bind(mux)
	return mux
}

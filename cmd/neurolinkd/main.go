package main

import (
	"context"
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/neurolink/pkg/device"
	"github.com/robotalks/neurolink/pkg/framework"
	"github.com/robotalks/neurolink/pkg/l0/comm"
	"github.com/robotalks/neurolink/pkg/l1/mqtt"
)

func init() {
	device.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := device.Default().MustResolve()
	caps, err := conf.CapabilityDescriptor()
	if err != nil {
		log.Fatalln(err)
	}

	loop := framework.NewLoop()
	loop.Interval = conf.Tick

	var notifiers []comm.StateNotifier
	if conf.MQTTURL != "" {
		pub, err := mqtt.NewPublisher(conf.MQTTURL, mqtt.DeviceInfo{
			ID:           conf.ID,
			Transport:    conf.Transport,
			Capabilities: caps,
		})
		if err != nil {
			log.Fatalln(err)
		}
		notifiers = append(notifiers, pub)
		loop.AddRunnable(framework.NamedRun("mqtt", pub))
	}

	backend, err := conf.NewBackend(caps)
	if err != nil {
		log.Fatalln(err)
	}
	dev := device.New(conf, backend, caps, notifiers...)
	loop.Add(dev)

	glog.Infof("device %s on %s link", conf.ID, conf.Transport)
	err = framework.NewRunner().HandleSignals().Go(loop).Wait()
	if cerr := dev.Close(context.Background()); cerr != nil {
		glog.Errorf("close: %v", cerr)
	}
	stats := loop.Stats()
	glog.Infof("loop stopped after %d iterations, %d overruns, longest %s",
		stats.Iterations, stats.Overruns, stats.Longest)
	if err != nil {
		log.Fatalln(err)
	}
}

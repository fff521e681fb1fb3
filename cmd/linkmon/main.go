package main

import (
	"flag"
	"log"
	"os"

	"github.com/robotalks/neurolink/pkg/framework"
	"github.com/robotalks/neurolink/pkg/l1/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/neurolink/"
)

func init() {
	if val := os.Getenv("NEUROLINK_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	defer q.Close()

	q.WatchStatus(func(st *mqtt.Status) {
		log.Printf("%s: [%s] %s seq=%d", st.Device, st.Transport, st.State, st.Seq)
	})
	q.WatchCaps(func(device string, caps []byte) {
		log.Printf("%s: caps %s", device, string(caps))
	})

	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-framework.NewRunner().HandleSignals().Context.Done()
}

package mqtt

import (
	"strings"

	"github.com/golang/glog"
)

// WatchStatus subscribes the status of all devices.
func (q *Queue) WatchStatus(fn func(*Status)) *Subscription {
	return q.Sub("+/"+StatusTopic, func(topic string, payload []byte) {
		st, err := DecodeStatus(payload)
		if err != nil {
			glog.Warningf("%s: %v", topic, err)
			return
		}
		fn(st)
	})
}

// WatchCaps subscribes the capability descriptors of all devices.
func (q *Queue) WatchCaps(fn func(device string, caps []byte)) *Subscription {
	return q.Sub("+/"+CapsTopic, func(topic string, payload []byte) {
		fn(strings.TrimSuffix(topic, "/"+CapsTopic), payload)
	})
}

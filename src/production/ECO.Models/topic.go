package ecomodels

import "strings"

// Topic names one dashboard broadcast channel
type Topic string

const (
	TopicDashboard Topic = "dashboard"
	TopicHardware  Topic = "hardware"
	TopicEnergy    Topic = "energy"
	TopicNetwork   Topic = "network"
	TopicScores    Topic = "scores"
)

// Topics lists every topic in broadcast order
var Topics = []Topic{TopicDashboard, TopicHardware, TopicEnergy, TopicNetwork, TopicScores}

// Message types pushed to subscribers
const (
	MessageInitialData = "initial_data"
	MessageDataUpdate  = "data_update"
)

// Valid reports whether t is one of Topics
func (t Topic) Valid() bool {
	switch t {
	case TopicDashboard, TopicHardware, TopicEnergy, TopicNetwork, TopicScores:
		return true
	}
	return false
}

// ParseTopic accepts a raw path segment such as "energy" or "energy/"
func ParseTopic(raw string) (Topic, error) {
	t := Topic(strings.Trim(strings.ToLower(raw), "/ "))
	if !t.Valid() {
		return "", &InvalidTopicError{Topic: raw}
	}
	return t, nil
}

package wmi

import (
	"fmt"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// Persist is an event consumer bound to an event filter: the usual
// way WMI is abused to run code on a trigger.
type Persist struct {
	Class        string            `json:"class"`
	Values       *ordereddict.Dict `json:"values"`
	Query        string            `json:"query"`
	SID          string            `json:"sid"`
	Filter       string            `json:"filter"`
	Consumer     string            `json:"consumer"`
	ConsumerName string            `json:"consumer_name"`
}

func (self *Persist) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("class", self.Class).
		Set("values", self.Values).
		Set("query", self.Query).
		Set("sid", self.SID).
		Set("filter", self.Filter).
		Set("consumer", self.Consumer).
		Set("consumer_name", self.ConsumerName)
}

func valueString(values *ordereddict.Dict, name string) (string, bool) {
	if values == nil {
		return "", false
	}
	value, pres := values.Get(name)
	if !pres || value == nil {
		return "", false
	}

	switch t := value.(type) {
	case string:
		return t, true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// Persistence finds every __EventConsumer subclass instance that a
// __FilterToConsumerBinding ties to an __EventFilter.
func Persistence(values []*ClassValues) []*Persist {
	result := []*Persist{}
	seen := make(map[string]bool)

	for _, consumer := range values {
		if consumer.SuperClassName != "__EventConsumer" {
			continue
		}

		for _, binding := range values {
			if binding.ClassName != "__FilterToConsumerBinding" {
				continue
			}

			for _, filter := range values {
				if filter.ClassName != "__EventFilter" {
					continue
				}

				persist := assemblePersist(consumer, binding, filter)
				if persist == nil {
					continue
				}

				key := persist.Class + "\x00" + persist.ConsumerName + "\x00" +
					persist.Filter
				if !seen[key] {
					seen[key] = true
					result = append(result, persist)
				}
				break
			}
		}
	}

	return result
}

func assemblePersist(consumer, binding, filter *ClassValues) *Persist {
	consumer_name, pres := valueString(consumer.Values, "Name")
	if !pres {
		return nil
	}
	consumer_name = strings.ReplaceAll(consumer_name, "\"", "")

	strip := strings.NewReplacer("\"", "", "\\", "")

	bound_consumer, pres := valueString(binding.Values, "Consumer")
	if !pres {
		return nil
	}
	bound_consumer = strip.Replace(bound_consumer)
	if consumer.ClassName+".Name="+consumer_name != bound_consumer {
		return nil
	}

	bound_filter, pres := valueString(binding.Values, "Filter")
	if !pres {
		return nil
	}
	bound_filter = strip.Replace(bound_filter)

	filter_name, pres := valueString(filter.Values, "Name")
	if !pres {
		return nil
	}
	filter_name = strings.ReplaceAll(filter_name, "\"", "")
	if "__EventFilter.Name="+filter_name != bound_filter {
		return nil
	}

	query, pres := valueString(filter.Values, "Query")
	if !pres {
		return nil
	}

	result := &Persist{
		Class:        consumer.ClassName,
		Values:       consumer.Values,
		Query:        strings.ReplaceAll(query, "\"", ""),
		Filter:       bound_filter,
		Consumer:     bound_consumer,
		ConsumerName: consumer_name,
	}

	sid_value, pres := filter.Values.Get("CreatorSID")
	if !pres {
		return nil
	}

	sid_array, _ := sid_value.([]interface{})
	sid_data := make([]byte, 0, len(sid_array))
	for _, item := range sid_array {
		b, _ := item.(uint8)
		sid_data = append(sid_data, b)
	}

	if len(sid_data) > 0 {
		sid, err := utils.ParseSID(sid_data)
		if err != nil {
			log.WithError(err).Warn("[wmi] Could not extract persistence SID")
		} else {
			result.SID = sid
		}
	}

	return result
}

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/miere/malka/internal/errs"
)

// Descriptor is a declarative subscription entry: one topic fanned out to
// one or more remote function targets, each run with a configurable
// parallelism factor.
type Descriptor struct {
	TopicName                 string            `json:"topic_name" validate:"required"`
	TopicNumberOfConsumers    int               `json:"topic_number_of_consumers" validate:"min=1"`
	TopicMaxBufferSize        int               `json:"topic_max_buffer_size" validate:"min=1"`
	TopicMaxBufferAwaitTimeMs int               `json:"topic_max_buffer_await_time_ms" validate:"min=1"`
	ConsumerConfiguration     map[string]string `json:"consumer_configuration"`
	TargetFunctions           []FunctionTarget  `json:"target_functions" validate:"required,min=1,dive"`
}

// FunctionTarget names a remote function invocation target, with an
// optional version/alias qualifier (see original_source's
// LambdaInvocationOptions; absent means the function's unqualified/$LATEST
// version).
type FunctionTarget struct {
	Name      string `json:"name" validate:"required"`
	Qualifier string `json:"qualifier,omitempty"`
}

// UnmarshalJSON accepts either a bare function-name string (the distilled
// spec's `target_functions: ["user_deleted"]` shape) or an object carrying
// an explicit qualifier, so existing descriptor files keep working.
func (f *FunctionTarget) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		f.Name = name
		return nil
	}
	type alias FunctionTarget
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = FunctionTarget(a)
	return nil
}

const (
	defaultTopicNumberOfConsumers    = 1
	defaultTopicMaxBufferSize        = 100
	defaultTopicMaxBufferAwaitTimeMs = 1000
)

var validate = validator.New()

// LoadDescriptors reads and concatenates the descriptor arrays in each
// given JSON file, applying defaults and validating every entry before
// returning.
func LoadDescriptors(paths []string) ([]Descriptor, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no configuration files supplied", errs.ErrInvalidParameters)
	}

	var all []Descriptor
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var raw []rawDescriptor
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		for _, d := range raw {
			desc := d.withDefaults()
			if err := validate.Struct(desc); err != nil {
				return nil, fmt.Errorf("%s: invalid descriptor %q: %w", path, desc.TopicName, err)
			}
			all = append(all, desc)
		}
	}
	return all, nil
}

// rawDescriptor mirrors Descriptor but with pointer fields for the
// defaultable ones, so "absent" and "explicit zero" can be told apart
// before withDefaults runs.
type rawDescriptor struct {
	TopicName                 string            `json:"topic_name"`
	TopicNumberOfConsumers    *int              `json:"topic_number_of_consumers"`
	TopicMaxBufferSize        *int              `json:"topic_max_buffer_size"`
	TopicMaxBufferAwaitTimeMs *int              `json:"topic_max_buffer_await_time_ms"`
	ConsumerConfiguration     map[string]string `json:"consumer_configuration"`
	TargetFunctions           []FunctionTarget  `json:"target_functions"`
}

func (d rawDescriptor) withDefaults() Descriptor {
	desc := Descriptor{
		TopicName:                 d.TopicName,
		TopicNumberOfConsumers:    defaultTopicNumberOfConsumers,
		TopicMaxBufferSize:        defaultTopicMaxBufferSize,
		TopicMaxBufferAwaitTimeMs: defaultTopicMaxBufferAwaitTimeMs,
		ConsumerConfiguration:     d.ConsumerConfiguration,
		TargetFunctions:           d.TargetFunctions,
	}
	if d.TopicNumberOfConsumers != nil {
		desc.TopicNumberOfConsumers = *d.TopicNumberOfConsumers
	}
	if d.TopicMaxBufferSize != nil {
		desc.TopicMaxBufferSize = *d.TopicMaxBufferSize
	}
	if d.TopicMaxBufferAwaitTimeMs != nil {
		desc.TopicMaxBufferAwaitTimeMs = *d.TopicMaxBufferAwaitTimeMs
	}
	return desc
}

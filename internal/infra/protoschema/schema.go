// Package protoschema provides the Assist protocol schema at runtime. Messages
// are built with dynamicpb from a descriptor set, and fields are resolved by
// name so descriptors compiled from the upstream API definitions work as well
// as the built-in one.
package protoschema

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"text-assistant/internal/domain"
)

type Schema struct {
	method   protoreflect.MethodDescriptor
	request  protoreflect.MessageDescriptor
	response protoreflect.MessageDescriptor
}

// Load reads a serialized FileDescriptorSet.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError(path, err)
	}

	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, domain.IOError(path, fmt.Errorf("decoding descriptor set: %w", err))
	}

	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, domain.IOError(path, fmt.Errorf("resolving descriptor set: %w", err))
	}

	s, err := fromFiles(files)
	if err != nil {
		return nil, domain.IOError(path, err)
	}
	return s, nil
}

// Builtin returns the schema compiled into the binary.
func Builtin() (*Schema, error) {
	fd, err := protodesc.NewFile(builtinDescriptor(), nil)
	if err != nil {
		return nil, fmt.Errorf("building descriptor: %w", err)
	}

	files := new(protoregistry.Files)
	if err := files.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("registering descriptor: %w", err)
	}
	return fromFiles(files)
}

func fromFiles(files *protoregistry.Files) (*Schema, error) {
	name := protoreflect.FullName(Package + "." + ServiceName)
	desc, err := files.FindDescriptorByName(name)
	if err != nil {
		return nil, fmt.Errorf("finding service %s: %w", name, err)
	}
	service, ok := desc.(protoreflect.ServiceDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a service", name)
	}

	method := service.Methods().ByName(MethodName)
	if method == nil {
		return nil, fmt.Errorf("service %s has no %s method", name, MethodName)
	}
	if !method.IsStreamingClient() || !method.IsStreamingServer() {
		return nil, fmt.Errorf("%s.%s is not bidirectional streaming", name, MethodName)
	}

	return &Schema{
		method:   method,
		request:  method.Input(),
		response: method.Output(),
	}, nil
}

// AssistMethod is the gRPC method path, e.g.
// /google.assistant.embedded.v1alpha2.EmbeddedAssistant/Assist.
func (s *Schema) AssistMethod() string {
	return fmt.Sprintf("/%s/%s", s.method.Parent().FullName(), s.method.Name())
}

func (s *Schema) RequestDescriptor() protoreflect.MessageDescriptor {
	return s.request
}

func (s *Schema) ResponseDescriptor() protoreflect.MessageDescriptor {
	return s.response
}

// EncodeRequest builds the single config request that carries a text query.
func (s *Schema) EncodeRequest(req domain.AssistRequest) (proto.Message, error) {
	msg := dynamicpb.NewMessage(s.request)

	config, err := mutable(msg, "config")
	if err != nil {
		return nil, err
	}
	if err := set(config, "text_query", protoreflect.ValueOfString(req.CommandText)); err != nil {
		return nil, err
	}

	audioOut, err := mutable(config, "audio_out_config")
	if err != nil {
		return nil, err
	}
	encoding := req.AudioOut.Encoding
	if encoding == "" {
		encoding = domain.EncodingLinear16
	}
	if err := setEnum(audioOut, "encoding", string(encoding)); err != nil {
		return nil, err
	}
	if err := set(audioOut, "sample_rate_hertz", protoreflect.ValueOfInt32(req.AudioOut.SampleRateHertz)); err != nil {
		return nil, err
	}
	if err := set(audioOut, "volume_percentage", protoreflect.ValueOfInt32(req.AudioOut.VolumePercentage)); err != nil {
		return nil, err
	}

	dialog, err := mutable(config, "dialog_state_in")
	if err != nil {
		return nil, err
	}
	if err := set(dialog, "language_code", protoreflect.ValueOfString(req.LanguageCode)); err != nil {
		return nil, err
	}
	if len(req.ConversationState) > 0 {
		if err := set(dialog, "conversation_state", protoreflect.ValueOfBytes(req.ConversationState)); err != nil {
			return nil, err
		}
	}
	if err := set(dialog, "is_new_conversation", protoreflect.ValueOfBool(req.IsNewConversation)); err != nil {
		return nil, err
	}

	device, err := mutable(config, "device_config")
	if err != nil {
		return nil, err
	}
	if err := set(device, "device_id", protoreflect.ValueOfString(req.Device.DeviceID)); err != nil {
		return nil, err
	}
	if err := set(device, "device_model_id", protoreflect.ValueOfString(req.Device.DeviceModelID)); err != nil {
		return nil, err
	}

	return msg, nil
}

// NewResponse returns an empty message to receive into.
func (s *Schema) NewResponse() proto.Message {
	return dynamicpb.NewMessage(s.response)
}

// DecodeResponse extracts the audio chunk, dialog state and error text.
// audio_out is accepted as raw bytes or as a message with an audio_data
// field.
func (s *Schema) DecodeResponse(m proto.Message) (domain.AssistResponse, error) {
	msg := m.ProtoReflect()
	if msg.Descriptor().FullName() != s.response.FullName() {
		return domain.AssistResponse{}, fmt.Errorf("unexpected message %s", msg.Descriptor().FullName())
	}

	var out domain.AssistResponse
	fields := s.response.Fields()

	if fd := fields.ByName("audio_out"); fd != nil && msg.Has(fd) {
		switch fd.Kind() {
		case protoreflect.BytesKind:
			out.AudioOut = msg.Get(fd).Bytes()
		case protoreflect.MessageKind:
			out.AudioOut = bytesField(msg.Get(fd).Message(), "audio_data")
		default:
			return out, fmt.Errorf("audio_out has unsupported kind %s", fd.Kind())
		}
	}

	if fd := fields.ByName("dialog_state_out"); fd != nil && msg.Has(fd) {
		ds := msg.Get(fd).Message()
		out.DialogState = &domain.DialogStateOut{
			SupplementalDisplayText: stringField(ds, "supplemental_display_text"),
			ConversationState:       bytesField(ds, "conversation_state"),
			Transcript:              stringField(ds, "transcript"),
		}
	}

	out.ErrorMessage = stringField(msg, "error_message")
	return out, nil
}

func lookup(m protoreflect.Message, name string) (protoreflect.FieldDescriptor, error) {
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		return nil, fmt.Errorf("message %s has no field %s", m.Descriptor().FullName(), name)
	}
	return fd, nil
}

func mutable(m protoreflect.Message, name string) (protoreflect.Message, error) {
	fd, err := lookup(m, name)
	if err != nil {
		return nil, err
	}
	if fd.Kind() != protoreflect.MessageKind {
		return nil, fmt.Errorf("field %s is not a message", fd.FullName())
	}
	return m.Mutable(fd).Message(), nil
}

func set(m protoreflect.Message, name string, v protoreflect.Value) error {
	fd, err := lookup(m, name)
	if err != nil {
		return err
	}
	m.Set(fd, v)
	return nil
}

func setEnum(m protoreflect.Message, name, valueName string) error {
	fd, err := lookup(m, name)
	if err != nil {
		return err
	}
	if fd.Kind() != protoreflect.EnumKind {
		return fmt.Errorf("field %s is not an enum", fd.FullName())
	}
	v := fd.Enum().Values().ByName(protoreflect.Name(valueName))
	if v == nil {
		return fmt.Errorf("enum %s has no value %s", fd.Enum().FullName(), valueName)
	}
	m.Set(fd, protoreflect.ValueOfEnum(v.Number()))
	return nil
}

func stringField(m protoreflect.Message, name string) string {
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil || fd.Kind() != protoreflect.StringKind {
		return ""
	}
	return m.Get(fd).String()
}

func bytesField(m protoreflect.Message, name string) []byte {
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil || fd.Kind() != protoreflect.BytesKind || !m.Has(fd) {
		return nil
	}
	return m.Get(fd).Bytes()
}

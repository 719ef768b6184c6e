package protoschema

import (
	_ "embed"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	Package     = "google.assistant.embedded.v1alpha2"
	ServiceName = "EmbeddedAssistant"
	MethodName  = "Assist"

	sourceFileName = "embedded_assistant.proto"
)

// protoSource is the schema written next to the descriptor set. It declares
// the same messages as builtinDescriptor.
//
//go:embed embedded_assistant.proto
var protoSource []byte

func ProtoSource() []byte {
	return append([]byte(nil), protoSource...)
}

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	typeBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	typeBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	typeEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
	typeInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
	typeMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	typeString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
)

func field(name string, number int32, typ fieldType, typeName string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     typ.Enum(),
		JsonName: proto.String(jsonName(name)),
	}
	if typeName != "" {
		f.TypeName = proto.String("." + Package + "." + typeName)
	}
	return f
}

func oneofField(f *descriptorpb.FieldDescriptorProto, index int32) *descriptorpb.FieldDescriptorProto {
	f.OneofIndex = proto.Int32(index)
	return f
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func jsonName(name string) string {
	out := make([]byte, 0, len(name))
	upper := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}

// builtinDescriptor mirrors embedded_assistant.proto.
func builtinDescriptor() *descriptorpb.FileDescriptorProto {
	typeOneof := []*descriptorpb.OneofDescriptorProto{{Name: proto.String("type")}}

	request := message("AssistRequest",
		oneofField(field("config", 1, typeMessage, "AssistConfig"), 0),
		oneofField(field("audio_in", 2, typeBytes, ""), 0),
	)
	request.OneofDecl = typeOneof

	response := message("AssistResponse",
		oneofField(field("audio_out", 1, typeBytes, ""), 0),
		oneofField(field("device_action", 2, typeBytes, ""), 0),
		oneofField(field("device_state", 3, typeBytes, ""), 0),
		field("dialog_state_out", 5, typeMessage, "DialogStateOut"),
		field("error_message", 6, typeString, ""),
	)
	response.OneofDecl = typeOneof

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(sourceFileName),
		Package: proto.String(Package),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			request,
			response,
			message("AssistConfig",
				field("audio_in_config", 1, typeMessage, "AudioInConfig"),
				field("audio_out_config", 2, typeMessage, "AudioOutConfig"),
				field("dialog_state_in", 3, typeMessage, "DialogStateIn"),
				field("device_config", 4, typeMessage, "DeviceConfig"),
				field("text_query", 5, typeString, ""),
			),
			message("AudioInConfig",
				field("encoding", 1, typeEnum, "Encoding"),
				field("sample_rate_hertz", 2, typeInt32, ""),
			),
			message("AudioOutConfig",
				field("encoding", 1, typeEnum, "Encoding"),
				field("sample_rate_hertz", 2, typeInt32, ""),
				field("volume_percentage", 3, typeInt32, ""),
			),
			message("DialogStateIn",
				field("language_code", 1, typeString, ""),
				field("conversation_state", 2, typeBytes, ""),
				field("is_new_conversation", 3, typeBool, ""),
			),
			message("DialogStateOut",
				field("conversation_state", 1, typeBytes, ""),
				field("supplemental_display_text", 2, typeString, ""),
				field("transcript", 3, typeString, ""),
			),
			message("DeviceConfig",
				field("device_id", 1, typeString, ""),
				field("device_model_id", 2, typeString, ""),
			),
		},
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Encoding"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("ENCODING_UNSPECIFIED"), Number: proto.Int32(0)},
				{Name: proto.String("LINEAR16"), Number: proto.Int32(1)},
				{Name: proto.String("FLAC"), Number: proto.Int32(2)},
				{Name: proto.String("MP3"), Number: proto.Int32(3)},
			},
		}},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String(ServiceName),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:            proto.String(MethodName),
				InputType:       proto.String("." + Package + ".AssistRequest"),
				OutputType:      proto.String("." + Package + ".AssistResponse"),
				ClientStreaming: proto.Bool(true),
				ServerStreaming: proto.Bool(true),
			}},
		}},
	}
}

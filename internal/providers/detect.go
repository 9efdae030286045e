package providers

import "reflect"

// Detect determines which provider a client object belongs to. Precedence:
// caller-registered custom providers with a Detect predicate, then built-in
// structural checks over the client's exported member set. An explicit tag on
// the monitor side wins before this function is ever consulted.
func Detect(client any) string {
	if client == nil {
		return ProviderUnknown
	}

	if name := detectCustom(client); name != "" {
		return name
	}

	members := memberSet(client)
	switch {
	case members.hasAny("CreateChatCompletion", "Chat.Completions", "Completions.Create"):
		return ProviderOpenAI
	case members.hasAny("CreateMessage", "Messages.New", "Messages.Create"):
		return ProviderAnthropic
	case members.hasAny("InvokeModel", "Converse", "InvokeModelWithResponseStream"):
		return ProviderBedrock
	case members.hasAny("GenerateContent", "GetGenerativeModel", "Models.GenerateContent"):
		return ProviderGoogle
	case members.hasAny("Subscribe", "Queue.Submit"):
		return ProviderFal
	case members.hasAny("TextToSpeech", "TextToSpeech.Convert"):
		return ProviderElevenLabs
	case members.hasAny("GenerateText", "StreamText"):
		return ProviderVercelAI
	default:
		return ProviderUnknown
	}
}

type members map[string]struct{}

func (m members) hasAny(names ...string) bool {
	for _, name := range names {
		if _, ok := m[name]; ok {
			return true
		}
	}
	return false
}

// memberSet collects the exported methods and fields of a client, plus
// one-level nested "Field.Method" paths so sub-client surfaces like
// Chat.Completions are visible without instantiating anything.
func memberSet(client any) members {
	out := make(members)
	value := reflect.ValueOf(client)
	collectMembers(out, value.Type(), "", 0)
	return out
}

const maxMemberDepth = 2

func collectMembers(out members, t reflect.Type, prefix string, depth int) {
	if t == nil || depth > maxMemberDepth {
		return
	}
	for i := 0; i < t.NumMethod(); i++ {
		name := t.Method(i).Name
		out[prefix+name] = struct{}{}
	}

	elem := t
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
		for i := 0; i < elem.NumMethod(); i++ {
			out[prefix+elem.Method(i).Name] = struct{}{}
		}
	}
	if elem.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Field(i)
		if !field.IsExported() {
			continue
		}
		out[prefix+field.Name] = struct{}{}
		fieldType := field.Type
		if fieldType.Kind() == reflect.Struct || fieldType.Kind() == reflect.Pointer {
			collectMembers(out, reflect.PointerTo(deref(fieldType)), prefix+field.Name+".", depth+1)
		}
	}
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

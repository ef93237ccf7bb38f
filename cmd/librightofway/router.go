package main

import (
	"encoding/json"
	"errors"

	"github.com/dyike/RightOfWay/internal/service"
)

type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Dispatch(method string, paramsJson string) string {
	var result any
	var err error

	switch method {
	case "system.info":
		result = service.GetSystemInfo()
	case "simulation.state":
		result, err = service.SimulationState()
	case "simulation.control":
		result, err = service.ControlSimulation(paramsJson)
	case "congestion.evaluate":
		result, err = service.EvaluateCongestion(paramsJson)
	case "negotiation.run":
		result, err = service.Negotiate(paramsJson)
	case "negotiation.start":
		result, err = service.StartNegotiation(paramsJson)
	case "negotiation.history":
		result, err = service.ListNegotiations(paramsJson)
	case "negotiation.get":
		result, err = service.GetNegotiation(paramsJson)
	case "transcript.list":
		result, err = service.ListTranscripts(paramsJson)
	case "transcript.read":
		result, err = service.ReadTranscript(paramsJson)
	default:
		return jsonResp(404, "Method not found", nil)
	}
	if errors.Is(err, service.ErrNotInitialized) {
		return jsonResp(412, err.Error(), nil)
	}
	if err != nil {
		return jsonResp(500, err.Error(), nil)
	}
	return jsonResp(200, "Ok", result)
}

func jsonResp(code int, msg string, data any) string {
	resp := Response{Code: code, Msg: msg, Data: data}
	b, _ := json.Marshal(resp)
	return string(b)
}

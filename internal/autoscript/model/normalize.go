package model

import (
	"math"
)

// RawDocument is the arbitrary-shape document a script is normalized from. Loaders
// (YAML today) unmarshal into this before Normalize runs.
type RawDocument struct {
	Name          string                   `yaml:"name"`
	Version       string                   `yaml:"version"`
	ProfileID     string                   `yaml:"profileId"`
	Throttle      *int64                   `yaml:"throttle"`
	Defaults      RawDefaults              `yaml:"defaults"`
	Subscriptions []RawSubscription        `yaml:"subscriptions"`
	Operations    []RawOperation           `yaml:"operations"`
}

type RawRetry struct {
	Attempts  *int   `yaml:"attempts"`
	BackoffMs *int64 `yaml:"backoffMs"`
}

type RawPacing struct {
	OperationMinIntervalMs  *int64 `yaml:"operationMinIntervalMs"`
	EventCooldownMs         *int64 `yaml:"eventCooldownMs"`
	JitterMs                *int64 `yaml:"jitterMs"`
	NavigationMinIntervalMs *int64 `yaml:"navigationMinIntervalMs"`
	TimeoutMs               *int64 `yaml:"timeoutMs"`
}

type RawRecoveryAction struct {
	Action string         `yaml:"action"`
	Params map[string]any `yaml:"params"`
}

type RawRecovery struct {
	Attempts *int                `yaml:"attempts"`
	Actions  []RawRecoveryAction `yaml:"actions"`
}

type RawCheckpoint struct {
	ContainerID      string      `yaml:"containerId"`
	TargetCheckpoint string      `yaml:"targetCheckpoint"`
	Recovery         RawRecovery `yaml:"recovery"`
}

type RawDefaults struct {
	Retry          RawRetry    `yaml:"retry"`
	Impact         string      `yaml:"impact"`
	OnFailure      string      `yaml:"onFailure"`
	ValidationMode string      `yaml:"validationMode"`
	Recovery       RawRecovery `yaml:"recovery"`
	Pacing         RawPacing   `yaml:"pacing"`
	TimeoutMs      *int64      `yaml:"timeoutMs"`
	DisableTimeout *bool       `yaml:"disableTimeout"`
}

type RawSubscription struct {
	ID              string      `yaml:"id"`
	Selector        string      `yaml:"selector"`
	Visible         *bool       `yaml:"visible"`
	PageURLIncludes []string    `yaml:"pageUrlIncludes"`
	PageURLExcludes []string    `yaml:"pageUrlExcludes"`
	Events          []string    `yaml:"events"`
	DependsOn       []string    `yaml:"dependsOn"`
	Retry           RawRetry    `yaml:"retry"`
	Impact          string      `yaml:"impact"`
}

type RawCondition struct {
	Kind           string `yaml:"kind"`
	OperationID    string `yaml:"operationId"`
	SubscriptionID string `yaml:"subscriptionId"`
}

type RawValidationSpec struct {
	Mode string         `yaml:"mode"`
	Data map[string]any `yaml:"data"`
}

type RawOperation struct {
	ID             string             `yaml:"id"`
	Enabled        *bool              `yaml:"enabled"`
	Action         string             `yaml:"action"`
	Params         map[string]any     `yaml:"params"`
	Selector       string             `yaml:"selector"`
	URL            string             `yaml:"url"`
	Text           string             `yaml:"text"`
	Script         string             `yaml:"script"`
	Ms             *int64             `yaml:"ms"`
	Value          any                `yaml:"value"`
	Trigger        string             `yaml:"trigger"`
	DependsOn      []string           `yaml:"dependsOn"`
	Conditions     []RawCondition     `yaml:"conditions"`
	Retry          RawRetry           `yaml:"retry"`
	Impact         string             `yaml:"impact"`
	OnFailure      string             `yaml:"onFailure"`
	Pacing         RawPacing          `yaml:"pacing"`
	TimeoutMs      *int64             `yaml:"timeoutMs"`
	DisableTimeout *bool              `yaml:"disableTimeout"`
	Validation     *RawValidationSpec `yaml:"validation"`
	Checkpoint     RawCheckpoint      `yaml:"checkpoint"`
	Once           *bool              `yaml:"once"`
	OncePerAppear  *bool              `yaml:"oncePerAppear"`
}

func clampMin(v, min int64) int64 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return min
	}
	if v < min {
		return min
	}
	return v
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func int64Or(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return clampMin(*p, 0)
}

func intAttemptsOr(p *int, def int) int {
	if p == nil {
		return def
	}
	v := int64(*p)
	return int(clampMin(v, 1))
}

func impactOr(s string, def ImpactScope) ImpactScope {
	switch ImpactScope(s) {
	case ImpactOp, ImpactSubscription, ImpactScript:
		return ImpactScope(s)
	default:
		return def
	}
}

func onFailureOr(s string, def OnFailure) OnFailure {
	switch OnFailure(s) {
	case OnFailureChainStop, OnFailureContinue, OnFailureStopAll:
		return OnFailure(s)
	default:
		return def
	}
}

func normalizeRetry(r RawRetry, def Retry) Retry {
	return Retry{
		Attempts:  intAttemptsOr(r.Attempts, def.Attempts),
		BackoffMs: int64Or(r.BackoffMs, def.BackoffMs),
	}
}

func normalizePacing(p RawPacing, def Pacing) Pacing {
	return Pacing{
		OperationMinIntervalMs:  int64Or(p.OperationMinIntervalMs, def.OperationMinIntervalMs),
		EventCooldownMs:         int64Or(p.EventCooldownMs, def.EventCooldownMs),
		JitterMs:                int64Or(p.JitterMs, def.JitterMs),
		NavigationMinIntervalMs: int64Or(p.NavigationMinIntervalMs, def.NavigationMinIntervalMs),
		TimeoutMs:               int64Or(p.TimeoutMs, def.TimeoutMs),
	}
}

func normalizeRecoveryActions(raw []RawRecoveryAction) []RecoveryAction {
	actions := make([]RecoveryAction, 0, len(raw))
	for _, a := range raw {
		params := a.Params
		if params == nil {
			params = map[string]any{}
		}
		actions = append(actions, RecoveryAction{Action: a.Action, Params: params})
	}
	return actions
}

func normalizeRecovery(r RawRecovery, def Recovery) Recovery {
	attempts := def.Attempts
	if r.Attempts != nil {
		attempts = int(clampMin(int64(*r.Attempts), 0))
	}
	actions := def.Actions
	if r.Actions != nil {
		actions = normalizeRecoveryActions(r.Actions)
	}
	return Recovery{Attempts: attempts, Actions: actions}
}

// zeroRetry/zeroPacing/zeroRecovery are the zero-value fallbacks
// used when a script omits `defaults` entirely.
var (
	zeroRetry    = Retry{Attempts: 1, BackoffMs: 0}
	zeroPacing   = Pacing{}
	zeroRecovery = Recovery{Attempts: 0, Actions: nil}
)

func normalizeDefaults(r RawDefaults) Defaults {
	return Defaults{
		Retry:          normalizeRetry(r.Retry, zeroRetry),
		Impact:         impactOr(r.Impact, ImpactOp),
		OnFailure:      onFailureOr(r.OnFailure, OnFailureContinue),
		ValidationMode: r.ValidationMode,
		Recovery:       normalizeRecovery(r.Recovery, zeroRecovery),
		Pacing:         normalizePacing(r.Pacing, zeroPacing),
		TimeoutMs:      int64Or(r.TimeoutMs, 0),
		DisableTimeout: boolOr(r.DisableTimeout, false),
	}
}

func normalizeEvents(raw []string) []SubscriptionEvent {
	if len(raw) == 0 {
		return append([]SubscriptionEvent{}, AllSubscriptionEvents...)
	}
	out := make([]SubscriptionEvent, 0, len(raw))
	for _, s := range raw {
		if _, ok := parseSubscriptionEvent(s); ok {
			out = append(out, SubscriptionEvent(s))
		}
	}
	if len(out) == 0 {
		return append([]SubscriptionEvent{}, AllSubscriptionEvents...)
	}
	return out
}

func normalizeSubscription(r RawSubscription, defaults Defaults) Subscription {
	return Subscription{
		ID:              r.ID,
		Selector:        r.Selector,
		Visible:         boolOr(r.Visible, true),
		PageURLIncludes: orEmpty(r.PageURLIncludes),
		PageURLExcludes: orEmpty(r.PageURLExcludes),
		Events:          normalizeEvents(r.Events),
		DependsOn:       orEmpty(r.DependsOn),
		Retry:           normalizeRetry(r.Retry, defaults.Retry),
		Impact:          impactOr(r.Impact, defaults.Impact),
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func normalizeConditions(raw []RawCondition) []Condition {
	out := make([]Condition, 0, len(raw))
	for _, c := range raw {
		cond := Condition{Kind: ConditionKind(c.Kind), OperationID: c.OperationID, SubscriptionID: c.SubscriptionID}
		out = append(out, cond)
	}
	return out
}

// convenienceParams builds a params map from an operation's top-level
// convenience keys, used when no explicit params object is present.
func convenienceParams(r RawOperation) map[string]any {
	p := map[string]any{}
	if r.Selector != "" {
		p["selector"] = r.Selector
	}
	if r.URL != "" {
		p["url"] = r.URL
	}
	if r.Text != "" {
		p["text"] = r.Text
	}
	if r.Script != "" {
		p["script"] = r.Script
	}
	if r.Ms != nil {
		p["ms"] = *r.Ms
	}
	if r.Value != nil {
		p["value"] = r.Value
	}
	return p
}

func normalizeValidation(r *RawValidationSpec) *ValidationSpec {
	if r == nil {
		return nil
	}
	data := r.Data
	if data == nil {
		data = map[string]any{}
	}
	return &ValidationSpec{Mode: r.Mode, Data: data}
}

func normalizeCheckpoint(r RawCheckpoint, defaultRecovery Recovery) Checkpoint {
	return Checkpoint{
		ContainerID:      r.ContainerID,
		TargetCheckpoint: r.TargetCheckpoint,
		Recovery:         normalizeRecovery(r.Recovery, defaultRecovery),
	}
}

func normalizeOperation(r RawOperation, defaults Defaults) Operation {
	params := r.Params
	if params == nil {
		params = convenienceParams(r)
	}
	disableTimeout := boolOr(r.DisableTimeout, defaults.DisableTimeout)
	timeoutMs := int64Or(r.TimeoutMs, 0)
	return Operation{
		ID:             r.ID,
		Enabled:        boolOr(r.Enabled, true),
		Action:         r.Action,
		Params:         params,
		Trigger:        ParseTrigger(r.Trigger),
		DependsOn:      orEmpty(r.DependsOn),
		Conditions:     normalizeConditions(r.Conditions),
		Retry:          normalizeRetry(r.Retry, defaults.Retry),
		Impact:         impactOr(r.Impact, defaults.Impact),
		OnFailure:      onFailureOr(r.OnFailure, defaults.OnFailure),
		Pacing:         normalizePacing(r.Pacing, defaults.Pacing),
		TimeoutMs:      timeoutMs,
		DisableTimeout: disableTimeout,
		Validation:     normalizeValidation(r.Validation),
		Checkpoint:     normalizeCheckpoint(r.Checkpoint, defaults.Recovery),
		Once:           boolOr(r.Once, true),
		OncePerAppear:  boolOr(r.OncePerAppear, false),
	}
}

// Normalize turns a raw, arbitrary-shape document into a canonical Script
// with every default filled in, per the normalization rules: missing
// arrays become empty, missing booleans take documented defaults, numeric
// fields clamp to their floors, and operation params inherit convenience
// keys when no explicit params object is given.
func Normalize(raw RawDocument) Script {
	defaults := normalizeDefaults(raw.Defaults)

	throttle := int64(100)
	if raw.Throttle != nil {
		throttle = clampMin(*raw.Throttle, 100)
	}

	subs := make([]Subscription, 0, len(raw.Subscriptions))
	for _, rs := range raw.Subscriptions {
		subs = append(subs, normalizeSubscription(rs, defaults))
	}

	ops := make([]Operation, 0, len(raw.Operations))
	for _, ro := range raw.Operations {
		ops = append(ops, normalizeOperation(ro, defaults))
	}

	return Script{
		Name:          raw.Name,
		Version:       raw.Version,
		ProfileID:     raw.ProfileID,
		Throttle:      throttle,
		Defaults:      defaults,
		Subscriptions: subs,
		Operations:    ops,
	}
}

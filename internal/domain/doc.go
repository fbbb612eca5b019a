// Package domain models onboard instrument data and the eligibility gates
// that decide which samples are representative of sailing performance.
//
// # Data Source
//
// Samples originate on the vessel's NMEA 2000 bus. A gateway on the boat
// decodes bus traffic and republishes one flat JSON object per instrument
// tick over MQTT. Every field except the timestamp is optional: a vessel
// with no engine interface simply never sends "rpm", and a masthead unit
// outage drops "tws"/"twa" for the duration.
//
// # Conventions
//
//	tws    true wind speed, knots
//	twa    true wind angle, degrees relative to the bow; port and starboard
//	       are mirrored upstream, so the learning grid folds to 0-180
//	stw    speed through water, knots (paddlewheel or ultrasonic log)
//	hdg    magnetic heading, degrees 0-360 (circular)
//	rpm    engine revolutions per minute
//	volts  house/start bank voltage, used as an engine proxy when no RPM
//	       sender is wired: an alternator charging at speed pushes the bus
//	       above ~14.2 V
//	ts     milliseconds since the Unix epoch
//
// # Gates
//
// A sample is eligible for the performance table only while none of the
// five gates report a hard failure:
//
//	engine off      rpm <= 0, falling back to volts < 14.2
//	stable heading  rate of turn <= 3 deg/s (wrap-aware delta)
//	steady wind     stdev(tws) <= 3 kt and stdev(twa) <= 15 deg over 30 s
//	minimum speed   stw >= 1 kt
//	steady state    all of the above continuously for 30 s
//
// A gate whose inputs are missing reports Unavailable rather than failing,
// so a partially instrumented vessel can still learn its polar. Verdicts
// are surfaced individually; a UI can warn about unwired senders.
package domain

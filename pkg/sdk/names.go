package sdk

// Properties and elements.
const (
	PropExposure = "Exposure"
	PropTrigger  = "Trigger"
	PropStrobe   = "Strobe"
	PropGPIO     = "GPIO"

	ElemValue           = "Value"
	ElemEnable          = "Enable"
	ElemPolarity        = "Polarity"
	ElemDelay           = "Delay"
	ElemMode            = "Mode"
	ElemLowLatencyMode  = "IMXLowLatencyMode"
	ElemExposureMode    = "Exposure Mode"
	ElemSoftwareTrigger = "Software Trigger"
	ElemGPOut           = "GP Out"
)

// Frame filters and their parameters.
const (
	FilterRotateFlip = "Rotate Flip"
	FilterROI        = "ROI"

	ParamRotationAngle = "Rotation Angle"
	ParamTop           = "Top"
	ParamLeft          = "Left"
	ParamHeight        = "Height"
	ParamWidth         = "Width"
)

const (
	StrobeModeExposure   = 2
	ExposureModeTimed    = 0
	TriggerDelayMicrosec = 5
)

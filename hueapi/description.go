// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package hueapi

import (
	"text/template"
)

// descriptionText is the UPnP device description served at /description.xml.
// Clients fetch it from the LOCATION URL in SSDP responses; the fields mirror
// a first-generation Philips bridge closely enough for Echo devices to accept
// the emulation.
var descriptionText = `<?xml version="1.0" encoding="UTF-8" ?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
<specVersion><major>1</major><minor>0</minor></specVersion>
<URLBase>http://{{.Address}}:{{.Port}}/</URLBase>
<device>
<deviceType>urn:schemas-upnp-org:device:Basic:1</deviceType>
<friendlyName>Philips hue ({{.Address}}:{{.Port}})</friendlyName>
<manufacturer>Royal Philips Electronics</manufacturer>
<manufacturerURL>http://www.philips.com</manufacturerURL>
<modelDescription>Philips hue Personal Wireless Lighting</modelDescription>
<modelName>Philips hue bridge 2012</modelName>
<modelNumber>929000226503</modelNumber>
<modelURL>http://www.meethue.com</modelURL>
<serialNumber>{{.HubID}}</serialNumber>
<UDN>uuid:{{.HubID}}</UDN>
</device>
</root>
`

var descriptionTemplate = template.Must(template.New("description").Parse(descriptionText))

// descriptionData feeds the device description template.
type descriptionData struct {
	Address string
	Port    int
	HubID   string
}

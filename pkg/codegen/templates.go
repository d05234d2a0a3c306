package codegen

const headerTemplate = `#ifndef {{.Guard}}
#define {{.Guard}}

#include "apx_nodeData.h"
{{- range .Includes}}
#include "{{.}}"
{{- end}}

//////////////////////////////////////////////////////////////////////////////
// CONSTANTS AND DATA TYPES
//////////////////////////////////////////////////////////////////////////////
{{.Typedefs}}{{.ValueTables}}
//////////////////////////////////////////////////////////////////////////////
// FUNCTION PROTOTYPES
//////////////////////////////////////////////////////////////////////////////
void ApxNode_Init_{{.Name}}(void);
apx_nodeData_t * ApxNode_GetNodeData_{{.Name}}(void);
boolean ApxNode_IsConnected_{{.Name}}(void);
{{range .Reads}}
Std_ReturnType {{.Name}}({{.Param}});
{{- end}}
{{- range .Writes}}
Std_ReturnType {{.Name}}({{.Param}});
{{- end}}

#endif //{{.Guard}}
`

const sourceTemplate = `//////////////////////////////////////////////////////////////////////////////
// INCLUDES
//////////////////////////////////////////////////////////////////////////////
#include <string.h>
#include "{{.HeaderName}}"
#include "pack.h"

//////////////////////////////////////////////////////////////////////////////
// CONSTANTS AND DATA TYPES
//////////////////////////////////////////////////////////////////////////////
#define APX_DEFINITON_LEN {{.DefinitionLen}}u
#define APX_IN_PORT_DATA_LEN {{.InLen}}u
#define APX_OUT_PORT_DATA_LEN {{.OutLen}}u

//////////////////////////////////////////////////////////////////////////////
// LOCAL VARIABLES
//////////////////////////////////////////////////////////////////////////////
{{- if .InLen}}
static const uint8 m_inPortInitData[APX_IN_PORT_DATA_LEN] = {
{{.InInit}}
};
static uint8 m_inPortdata[APX_IN_PORT_DATA_LEN];
static uint8_t m_inPortDirtyFlags[APX_IN_PORT_DATA_LEN];
{{- end}}
{{- if .OutLen}}
static const uint8 m_outPortInitData[APX_OUT_PORT_DATA_LEN] = {
{{.OutInit}}
};
static uint8 m_outPortdata[APX_OUT_PORT_DATA_LEN];
static uint8_t m_outPortDirtyFlags[APX_OUT_PORT_DATA_LEN];
{{- end}}
static apx_nodeData_t m_nodeData;
static const char *m_apxDefinitionData =
{{.DefinitionLiteral}};

//////////////////////////////////////////////////////////////////////////////
// GLOBAL FUNCTIONS
//////////////////////////////////////////////////////////////////////////////
void ApxNode_Init_{{.Name}}(void)
{
{{- if .InLen}}
   memcpy(&m_inPortdata[0], &m_inPortInitData[0], APX_IN_PORT_DATA_LEN);
   memset(&m_inPortDirtyFlags[0], 0, sizeof(m_inPortDirtyFlags));
{{- end}}
{{- if .OutLen}}
   memcpy(&m_outPortdata[0], &m_outPortInitData[0], APX_OUT_PORT_DATA_LEN);
   memset(&m_outPortDirtyFlags[0], 0, sizeof(m_outPortDirtyFlags));
{{- end}}
   apx_nodeData_create(&m_nodeData, "{{.Name}}", (uint8_t*) &m_apxDefinitionData[0], APX_DEFINITON_LEN, {{.InArgs}}, {{.OutArgs}});
}

apx_nodeData_t * ApxNode_GetNodeData_{{.Name}}(void)
{
   return &m_nodeData;
}

boolean ApxNode_IsConnected_{{.Name}}(void)
{
   return apx_nodeData_isOutPortDataOpen(&m_nodeData) ? TRUE : FALSE;
}
{{range .Reads}}
Std_ReturnType {{.Name}}({{.Param}})
{
{{.Decls}}{{.Body}}   return E_OK;
}
{{end}}
{{- range .Writes}}
Std_ReturnType {{.Name}}({{.Param}})
{
{{.Decls}}{{.Body}}   return E_OK;
}
{{end}}`
